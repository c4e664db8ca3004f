package sdkerr

// Code is the numeric error code reported in ERROR event payloads.
type Code int

const (
	CodeAuthFailed        Code = 1001
	CodeNetworkError      Code = 1002
	CodeInvalidChannel    Code = 1003
	CodeMessageTooLarge   Code = 1004
	CodeNotConnected      Code = 1005
	CodeConnectionTimeout Code = 1006
	CodeInvalidConfig     Code = 1007
	CodeServerError       Code = 1008
	CodeUnknown           Code = 9999
)

var codeNames = map[Code]string{
	CodeAuthFailed:        "Authentication failed",
	CodeNetworkError:      "Network error",
	CodeInvalidChannel:    "Invalid channel",
	CodeMessageTooLarge:   "Message too large",
	CodeNotConnected:      "Not connected",
	CodeConnectionTimeout: "Connection timeout",
	CodeInvalidConfig:     "Invalid configuration",
	CodeServerError:       "Server error",
	CodeUnknown:           "Unknown error",
}

// CodeFromInt maps a raw integer to a known Code, defaulting to CodeUnknown.
func CodeFromInt(v int) Code {
	c := Code(v)
	if _, ok := codeNames[c]; ok {
		return c
	}
	return CodeUnknown
}

// String returns the human readable description of the code.
func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return codeNames[CodeUnknown]
}
