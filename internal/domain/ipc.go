package domain

// MessageType enumerates the IPC frame types exchanged between a
// Supervisor (client) and a Worker (server) over the per-instance stream
// socket. Values match the wire protocol bit-for-bit; they must not be
// renumbered.
type MessageType uint8

const (
	MsgPing MessageType = 0
	MsgPong MessageType = 1

	MsgShutdown    MessageType = 2
	MsgShutdownAck MessageType = 3

	MsgCreateInstance         MessageType = 10
	MsgCreateInstanceResponse MessageType = 11
	MsgDeleteInstance         MessageType = 12
	MsgDeleteInstanceResponse MessageType = 13
	MsgStartInstance          MessageType = 14
	MsgStartInstanceResponse  MessageType = 15
	MsgStopInstance           MessageType = 16
	MsgStopInstanceResponse   MessageType = 17
	MsgUpdateInstance         MessageType = 18
	MsgUpdateInstanceResponse MessageType = 19

	MsgGetInstanceStatus         MessageType = 20
	MsgGetInstanceStatusResponse MessageType = 21
	MsgGetStatistics             MessageType = 22
	MsgGetStatisticsResponse     MessageType = 23
	MsgGetLastFrame              MessageType = 24
	MsgGetLastFrameResponse      MessageType = 25

	MsgInstanceStateChanged MessageType = 30
	MsgInstanceError        MessageType = 31
	MsgWorkerReady          MessageType = 32
	MsgWorkerMemoryWarning  MessageType = 33

	MsgErrorResponse MessageType = 255
)

func (t MessageType) String() string {
	switch t {
	case MsgPing:
		return "PING"
	case MsgPong:
		return "PONG"
	case MsgShutdown:
		return "SHUTDOWN"
	case MsgShutdownAck:
		return "SHUTDOWN_ACK"
	case MsgCreateInstance:
		return "CREATE_INSTANCE"
	case MsgCreateInstanceResponse:
		return "CREATE_INSTANCE_RESPONSE"
	case MsgDeleteInstance:
		return "DELETE_INSTANCE"
	case MsgDeleteInstanceResponse:
		return "DELETE_INSTANCE_RESPONSE"
	case MsgStartInstance:
		return "START_INSTANCE"
	case MsgStartInstanceResponse:
		return "START_INSTANCE_RESPONSE"
	case MsgStopInstance:
		return "STOP_INSTANCE"
	case MsgStopInstanceResponse:
		return "STOP_INSTANCE_RESPONSE"
	case MsgUpdateInstance:
		return "UPDATE_INSTANCE"
	case MsgUpdateInstanceResponse:
		return "UPDATE_INSTANCE_RESPONSE"
	case MsgGetInstanceStatus:
		return "GET_INSTANCE_STATUS"
	case MsgGetInstanceStatusResponse:
		return "GET_INSTANCE_STATUS_RESPONSE"
	case MsgGetStatistics:
		return "GET_STATISTICS"
	case MsgGetStatisticsResponse:
		return "GET_STATISTICS_RESPONSE"
	case MsgGetLastFrame:
		return "GET_LAST_FRAME"
	case MsgGetLastFrameResponse:
		return "GET_LAST_FRAME_RESPONSE"
	case MsgInstanceStateChanged:
		return "INSTANCE_STATE_CHANGED"
	case MsgInstanceError:
		return "INSTANCE_ERROR"
	case MsgWorkerReady:
		return "WORKER_READY"
	case MsgWorkerMemoryWarning:
		return "WORKER_MEMORY_WARNING"
	case MsgErrorResponse:
		return "ERROR_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// ResponseStatus is the numeric status carried in a response payload.
type ResponseStatus int

const (
	StatusOK             ResponseStatus = 0
	StatusError          ResponseStatus = 1
	StatusNotFound       ResponseStatus = 2
	StatusAlreadyExists  ResponseStatus = 3
	StatusInvalidRequest ResponseStatus = 4
	StatusInternalError  ResponseStatus = 5
	StatusTimeout        ResponseStatus = 6
)

// ResponsePayload is the JSON body of every response-family message.
type ResponsePayload struct {
	Status  ResponseStatus  `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    interface{}     `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OKResponse builds a success payload.
func OKResponse(message string, data interface{}) ResponsePayload {
	return ResponsePayload{Status: StatusOK, Success: true, Message: message, Data: data}
}

// ErrResponse builds a failure payload from a Kind, mapping it to the
// nearest ResponseStatus.
func ErrResponse(kind Kind, errMsg string) ResponsePayload {
	return ResponsePayload{Status: statusForKind(kind), Success: false, Error: errMsg}
}

func statusForKind(k Kind) ResponseStatus {
	switch k {
	case KindNotFound:
		return StatusNotFound
	case KindAlreadyExists:
		return StatusAlreadyExists
	case KindValidation:
		return StatusInvalidRequest
	case KindTransport:
		return StatusTimeout
	default:
		return StatusInternalError
	}
}
