package parser

// transactionNotification frame, reduced to the fields the parser reads.
type envelope struct {
	Method string `json:"method"`
	Params struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Value *notificationValue `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

type notificationValue struct {
	Signature   string               `json:"signature"`
	Slot        uint64               `json:"slot"`
	Transaction *notificationWrapper `json:"transaction"`
}

// notificationWrapper is the outer transaction object carrying meta and the inner transaction.
type notificationWrapper struct {
	Transaction *notificationTransaction `json:"transaction"`
}

type notificationTransaction struct {
	Signatures []string             `json:"signatures"`
	Message    *notificationMessage `json:"message"`
}

type notificationMessage struct {
	Instructions []instruction `json:"instructions"`
}

// instruction is a top-level instruction in jsonParsed encoding. Instructions the
// node parsed itself carry "parsed" instead of data/accounts and are left empty here.
type instruction struct {
	ProgramID string   `json:"programId"`
	Accounts  []string `json:"accounts"`
	Data      string   `json:"data"`
}
