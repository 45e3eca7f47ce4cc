package models

type (
	// Error represents any erroneous response
	Error struct {
		Error string `json:"error"`
	}

	// Response is the acknowledgement returned by flows that don't return a respondent
	Response struct {
		Response string `json:"response"`
	}

	// Message is the acknowledgement returned when an email has been (re)sent
	Message struct {
		Message string `json:"message"`
	}
)

type (
	// Info represents the response from 'GET /info'
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
)
