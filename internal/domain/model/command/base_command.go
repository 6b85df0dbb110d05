package command

type CommandType string

const (
	OrderSubmittedCommandName CommandType = "OrderSubmitted"
)

// kafka header key
const (
	HeaderCommandType = "command_type"
	HeaderRetryCount  = "retry_count"
)

type Command interface {
	Type() CommandType
	GetID() string
}
