package services

// User-facing advisories attached to results.
const (
	MsgDelivered         = "Complaint submitted successfully."
	MsgQueuedOffline     = "You are offline. Complaint saved to local queue."
	MsgQueuedServerError = "Server unavailable — saved to queue and will retry when online."
	MsgDraftSaved        = "Draft saved to local queue."
	MsgRejected          = "Submission rejected: "
	MsgRetryDelivered    = "Queued item sent successfully."
	MsgRetryFailed       = "Failed to send queued item — will remain in queue."
	MsgBackOnline        = "Back online — trying to send queued submissions..."
	MsgWentOffline       = "Offline — submissions will be queued locally."
)
