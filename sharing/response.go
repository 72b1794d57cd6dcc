package sharing

import (
	"strconv"
	"strings"
)

// Literal responses of the control protocol. Clients match these strings
// exactly.
const (
	AuthOK  = "auth OK"
	AuthErr = "auth ERR"
	PortOK  = "port OK"
	PortErr = "port ERR"
	GetErr  = "get ERR"
	PubOK   = "pub OK"
	PubErr  = "pub ERR"
	UnpOK   = "unp OK"
	UnpErr  = "unp ERR"
	XitResp = "xit"

	NoActivePeers    = "lap No active peers"
	NoFilesPublished = "lpf No files published"
	NoFilesFound     = "sch No files found"

	InputErr = "INPUT_ERR"
)

// ListResponse renders the response to lap, lpf and sch: the command name
// followed by the items. An empty list yields the command's empty message.
func ListResponse(kind CommandKind, items []string) string {
	if len(items) == 0 {
		switch kind {
		case ListPeers:
			return NoActivePeers
		case ListFiles:
			return NoFilesPublished
		case Search:
			return NoFilesFound
		default:
			return InputErr
		}
	}
	return kind.String() + " " + strings.Join(items, " ")
}

// GetResponse renders a successful `get` response.
func GetResponse(host string, uploadPort uint16, filename string) string {
	return strings.Join([]string{Get.String(), host, strconv.Itoa(int(uploadPort)), filename}, " ")
}

// ParseGetResponse extracts the publisher address and filename from a
// successful `get` response.
func ParseGetResponse(resp string) (host string, port uint16, filename string, err error) {
	tokens := strings.Fields(resp)
	if len(tokens) != 4 || tokens[0] != Get.String() {
		return "", 0, "", ErrInvalidRequest
	}
	port, err = ParsePort(tokens[2])
	if err != nil {
		return "", 0, "", ErrInvalidRequest
	}
	return tokens[1], port, tokens[3], nil
}

// ParseListResponse returns the items of a lap, lpf or sch response, or nil
// when the response is the command's empty message.
func ParseListResponse(kind CommandKind, resp string) []string {
	switch resp {
	case NoActivePeers, NoFilesPublished, NoFilesFound, InputErr:
		return nil
	}
	tokens := strings.Fields(resp)
	if len(tokens) == 0 || tokens[0] != kind.String() {
		return nil
	}
	return tokens[1:]
}
