package protocol

// Reason is a machine-readable code explaining a server reply or a teardown.
// The human-readable Text is what travels in the frame payload.
type Reason string

// Reasons known to the server.
const (
	ReasonOK                  Reason = "OK"
	ReasonAuthRequired        Reason = "AUTH_REQUIRED"
	ReasonAuthUsernameInvalid Reason = "AUTH_USERNAME_INVALID"
	ReasonUsername            Reason = "ERROR_USERNAME"
	ReasonSendMsg             Reason = "ERROR_SEND_MSG"
	ReasonFileData            Reason = "ERROR_FILE_DATA"
	ReasonGetMsg              Reason = "ERROR_GET_MSG"
	ReasonTime                Reason = "ERROR_TIME"
	ReasonDataEmpty           Reason = "ERROR_DATA_EMPTY"
	ReasonRepeatAuth          Reason = "ERROR_REPEAT_AUTH"
	ReasonCloseFromClient     Reason = "CLOSE_FROM_CLIENT"
	ReasonCloseServer         Reason = "CLOSE_SERVER"
)

var reasonText = map[Reason]string{
	ReasonOK:                  "OK",
	ReasonAuthRequired:        "Authorization is required before any other command.",
	ReasonAuthUsernameInvalid: "Username already exists or invalid.",
	ReasonUsername:            "The username in the received package does not match the authorization username.",
	ReasonSendMsg:             "Exception while sending package.",
	ReasonFileData:            "Error in the data field when sending a file (file name or bytes are missing).",
	ReasonGetMsg:              "Exception when receiving package.",
	ReasonTime:                "Incorrect time in the received packet.",
	ReasonDataEmpty:           "For a message or file sending packet, the \"data\" field should not be empty.",
	ReasonRepeatAuth:          "An authorization retry was received even though the socket is already authorized.",
	ReasonCloseFromClient:     "The client is disabled at his will.",
	ReasonCloseServer:         "Server has been stopped.",
}

// Text returns the human-readable explanation sent to the peer.
func (r Reason) Text() string {
	if t, ok := reasonText[r]; ok {
		return t
	}
	return string(r)
}

// ReasonFromText maps a reply payload back to its reason code. Unknown text
// is returned as-is.
func ReasonFromText(text string) Reason {
	for r, t := range reasonText {
		if t == text {
			return r
		}
	}
	return Reason(text)
}
