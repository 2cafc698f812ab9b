package model

import "time"

// QueuedAttachment is a cycle image or document whose upload failed and
// was parked in local storage. Attachments share the offline-queue
// pattern: unlike record saves, a failed upload always falls back to the
// queue, because the binary is otherwise lost.
type QueuedAttachment struct {
	ID          string    `json:"id"`
	TourID      string    `json:"tour_id"`
	Category    Category  `json:"category"`
	CycleNumber int       `json:"cycle_number"`
	FileName    string    `json:"file_name"`
	Data        []byte    `json:"data"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}
