package assistant

import (
	"testing"

	"github.com/tinoosan/fintrack/internal/ledger"
)

func TestParseAction_AddDefaultsAndAliases(t *testing.T) {
	act, err := ParseAction(`{"action":"add_transaction","data":{"amount":"12.50","category_name":" Food ","date":"2024-05-01"}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	add, ok := act.(AddTransaction)
	if !ok {
		t.Fatalf("got %T", act)
	}
	if add.Type != ledger.TxExpense || add.CategoryName != "Food" || add.Amount.String() != "12.50" {
		t.Fatalf("unexpected add: %+v", add)
	}
	if add.Date.Format("2006-01-02") != "2024-05-01" {
		t.Fatalf("date = %v", add.Date)
	}

	act, err = ParseAction(`{"action":"ADD_TRANSACTION","data":{"amount":3}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if add := act.(AddTransaction); add.CategoryName != "Other" {
		t.Fatalf("default category = %q", add.CategoryName)
	}
}

func TestParseAction_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"action":`,
		"unknown action":  `{"action":"TRANSFER_FUNDS","data":{"amount":1}}`,
		"missing amount":  `{"action":"ADD_TRANSACTION","data":{}}`,
		"negative amount": `{"action":"ADD_TRANSACTION","data":{"amount":-4}}`,
		"bad type":        `{"action":"ADD_TRANSACTION","data":{"amount":4,"type":"gift"}}`,
		"bad date":        `{"action":"ADD_TRANSACTION","data":{"amount":4,"date":"yesterday"}}`,
		"bad id":          `{"action":"DELETE_TRANSACTION","data":{"transactionId":"42"}}`,
		"missing id":      `{"action":"DELETE_HOLDING","data":{}}`,
		"empty update":    `{"action":"UPDATE_TRANSACTION","data":{"id":"7f1d2c8e-4b1a-4d55-9a57-3f3f0c1f9a11"}}`,
	}
	for name, raw := range cases {
		if _, err := ParseAction(raw); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

func TestParseAction_UpdateAndDeletes(t *testing.T) {
	const id = "7f1d2c8e-4b1a-4d55-9a57-3f3f0c1f9a11"
	act, err := ParseAction(`{"action":"UPDATE_TRANSACTION","data":{"transaction_id":"` + id + `","type":"income"}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	u := act.(UpdateTransaction)
	if u.ID.String() != id || u.Type == nil || *u.Type != ledger.TxIncome || u.Amount != nil {
		t.Fatalf("unexpected update: %+v", u)
	}
	act, err = ParseAction(`{"action":"DELETE_HOLDING","data":{"holdingId":"` + id + `"}}`)
	if err != nil || act.Kind() != KindDeleteHolding {
		t.Fatalf("delete holding: %v %v", act, err)
	}
}
