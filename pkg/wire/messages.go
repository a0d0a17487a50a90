package wire

// Hello is exchanged once at connection start. The client leaves ConnID
// empty; the host fills it in.
type Hello struct {
	Version uint16
	ConnID  string
}

// EncodeHello encodes a Hello payload.
func EncodeHello(h *Hello) []byte {
	e := &encoder{}
	e.writeUint16(h.Version)
	e.writeString(h.ConnID)
	return e.buf
}

// DecodeHello decodes a Hello payload.
func DecodeHello(data []byte) (*Hello, error) {
	d := &decoder{buf: data}
	version, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	connID, err := d.readString()
	if err != nil {
		return nil, err
	}
	return &Hello{Version: version, ConnID: connID}, nil
}

// CloseReason indicates why a connection is being closed.
type CloseReason uint8

const (
	CloseNormal         CloseReason = 0x00
	CloseGoingAway      CloseReason = 0x01
	CloseServerShutdown CloseReason = 0x02
	CloseError          CloseReason = 0x03
)

// String returns the string representation of the close reason.
func (cr CloseReason) String() string {
	switch cr {
	case CloseNormal:
		return "Normal"
	case CloseGoingAway:
		return "GoingAway"
	case CloseServerShutdown:
		return "ServerShutdown"
	case CloseError:
		return "Error"
	default:
		return "Unknown"
	}
}

// EncodeClose encodes a Close payload.
func EncodeClose(reason CloseReason) []byte {
	return []byte{byte(reason)}
}

// DecodeClose decodes a Close payload. An empty payload means CloseNormal.
func DecodeClose(data []byte) CloseReason {
	if len(data) == 0 {
		return CloseNormal
	}
	return CloseReason(data[0])
}

// ErrorCode identifies the type of error.
type ErrorCode uint16

const (
	ErrUnknown         ErrorCode = 0x0000
	ErrInvalidFrame    ErrorCode = 0x0001
	ErrVersionMismatch ErrorCode = 0x0002
	ErrWorkerNotFound  ErrorCode = 0x0003
	ErrWorkerPanic     ErrorCode = 0x0004
	ErrMailboxFull     ErrorCode = 0x0005
	ErrOutputTooLarge  ErrorCode = 0x0006
	ErrServerError     ErrorCode = 0x0100
)

// String returns the string representation of the error code.
func (ec ErrorCode) String() string {
	switch ec {
	case ErrInvalidFrame:
		return "InvalidFrame"
	case ErrVersionMismatch:
		return "VersionMismatch"
	case ErrWorkerNotFound:
		return "WorkerNotFound"
	case ErrWorkerPanic:
		return "WorkerPanic"
	case ErrMailboxFull:
		return "MailboxFull"
	case ErrOutputTooLarge:
		return "OutputTooLarge"
	case ErrServerError:
		return "ServerError"
	default:
		return "Unknown"
	}
}

// ErrorMessage is sent when an error occurs.
type ErrorMessage struct {
	Code    ErrorCode
	Message string
	Fatal   bool // If true, the sender closes the connection after this frame
}

// Error implements the error interface.
func (em *ErrorMessage) Error() string {
	return "wire: " + em.Code.String() + ": " + em.Message
}

// EncodeErrorMessage encodes an ErrorMessage payload.
func EncodeErrorMessage(em *ErrorMessage) []byte {
	e := &encoder{}
	e.writeUint16(uint16(em.Code))
	e.writeString(em.Message)
	e.writeBool(em.Fatal)
	return e.buf
}

// DecodeErrorMessage decodes an ErrorMessage payload.
func DecodeErrorMessage(data []byte) (*ErrorMessage, error) {
	d := &decoder{buf: data}
	code, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	msg, err := d.readString()
	if err != nil {
		return nil, err
	}
	fatal, err := d.readBool()
	if err != nil {
		return nil, err
	}
	return &ErrorMessage{Code: ErrorCode(code), Message: msg, Fatal: fatal}, nil
}
