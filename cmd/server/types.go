//go:build !js && !wasm

package main

// Caller-facing messages for failures caught before analysis starts.
const (
	MsgNoFile           = "No audio file provided."
	MsgInvalidUpload    = "Invalid upload. Send a multipart form with a file field."
	MsgLabelsRequired   = "genre and daw are required."
	MsgMethodNotAllowed = "Method not allowed. Use POST."
)

// ErrorResponse is the body of every handled failure. Failures are still
// sent with status 200; callers branch on the presence of "error".
type ErrorResponse struct {
	Error string `json:"error"`
}

// AckResponse answers CORS preflight requests.
type AckResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
