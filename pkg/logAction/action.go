package logAction

// LoggerAction identifies what a log entry records. Action is the broad
// category, SubAction the concrete operation within it.
type LoggerAction struct {
	Action            string
	ActionDescription string
	SubAction         string
}

const (
	DB_CREATE = "insert"
	DB_READ   = "query"
	DB_UPDATE = "update"
	DB_DELETE = "delete"
)

func DB_REQUEST(subAction, description string) LoggerAction {
	return LoggerAction{
		Action:            "db_request",
		ActionDescription: description,
		SubAction:         subAction,
	}
}

func DB_RESPONSE(subAction, description string) LoggerAction {
	return LoggerAction{
		Action:            "db_response",
		ActionDescription: description,
		SubAction:         subAction,
	}
}

func INBOUND(description string) LoggerAction {
	return LoggerAction{
		Action:            "inbound",
		ActionDescription: description,
	}
}

func OUTBOUND(description string) LoggerAction {
	return LoggerAction{
		Action:            "outbound",
		ActionDescription: description,
	}
}

func HTTP_REQUEST(description string) LoggerAction {
	return LoggerAction{
		Action:            "http_request",
		ActionDescription: description,
	}
}

func HTTP_RESPONSE(description string) LoggerAction {
	return LoggerAction{
		Action:            "http_response",
		ActionDescription: description,
	}
}

func PRODUCE(description string) LoggerAction {
	return LoggerAction{
		Action:            "produce",
		ActionDescription: description,
	}
}

func CONSUME(description string) LoggerAction {
	return LoggerAction{
		Action:            "consume",
		ActionDescription: description,
	}
}

func EXCEPTION(description string) LoggerAction {
	return LoggerAction{
		Action:            "exception",
		ActionDescription: description,
	}
}
