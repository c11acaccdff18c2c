package service

import "fmt"

// IndexPath is the queue's landing page.
const IndexPath = "/"

// TicketPath is the client route of a single ticket.
func TicketPath(id int64) string {
	return fmt.Sprintf("/%d/", id)
}
