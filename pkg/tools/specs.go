package tools

// Tool names.
const (
	ToolGetMenu           = "get_menu"
	ToolOrderItem         = "order_item"
	ToolGetBalance        = "get_balance"
	ToolGetBill           = "get_bill"
	ToolSetTip            = "set_tip"
	ToolCreatePaymentLink = "create_payment_link"
	ToolCheckPayment      = "check_payment"
	ToolRecordTurn        = "record_turn"
	ToolResetSession      = "reset_session"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamArray   ParamType = "array"
)

// Param describes one tool argument.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
}

// Spec describes a tool for adapters that advertise a schema.
type Spec struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params,omitempty"`
}

// Specs lists every tool in a stable order.
func Specs() []Spec {
	return []Spec{
		{Name: ToolGetMenu, Description: "List the menu with prices."},
		{
			Name:        ToolOrderItem,
			Description: "Order an item from the menu. The price is charged to the tab and deducted from the balance.",
			Params: []Param{
				{Name: "item", Type: ParamString, Required: true, Description: "Menu item name"},
				{Name: "quantity", Type: ParamInteger, Description: "How many, defaults to 1"},
				{Name: "modifiers", Type: ParamArray, Description: "Modifiers such as oat milk"},
				{Name: "expected_version", Type: ParamInteger, Description: "Fail if the payment version moved"},
			},
		},
		{Name: ToolGetBalance, Description: "Show the remaining balance."},
		{Name: ToolGetBill, Description: "Show the current bill: items, tab, tip and total."},
		{
			Name:        ToolSetTip,
			Description: "Select a tip of 10, 15 or 20 percent. Choosing the current tip again removes it; omit percentage to clear.",
			Params: []Param{
				{Name: "percentage", Type: ParamInteger, Description: "10, 15 or 20"},
			},
		},
		{
			Name:        ToolCreatePaymentLink,
			Description: "Create a payment link for the tab plus tip. Repeated calls return the link already in flight, or a new one if that payment failed.",
			Params: []Param{
				{Name: "description", Type: ParamString, Description: "Text shown on the payment page"},
			},
		},
		{
			Name:        ToolCheckPayment,
			Description: "Check whether the in-flight payment went through and settle the tab if it did.",
			Params: []Param{
				{Name: "timeout_seconds", Type: ParamNumber, Description: "How long to wait for a result"},
			},
		},
		{
			Name:        ToolRecordTurn,
			Description: "Record a conversation turn and advance the phase.",
			Params: []Param{
				{Name: "event", Type: ParamString, Required: true, Description: "greeting, order, small_talk, payment, paid or goodbye"},
			},
		},
		{Name: ToolResetSession, Description: "Discard the session and start over."},
	}
}
