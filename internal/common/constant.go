package common

// IdempotencyKeyHeader carries the submission id on every delivery attempt so
// the receiving side can drop redeliveries of the same submission.
const IdempotencyKeyHeader = "Idempotency-Key"

// Reserved keys of the transport body. Form fields may not use them.
const (
	AttachmentsKey = "attachments"
	SubmittedAtKey = "submittedAt"
)

// ComplainantNameField is the form field shown in queue listings.
const ComplainantNameField = "p1_complainant_fullnames"
