package core

import (
	"encoding/json"
	"testing"
)

func TestAttributes_UnmarshalJSON(t *testing.T) {
	var a Attributes
	data := `{"price": "1 200", "currency": "uzs", "category": "phone", "title": " Redmi 9 ", "memory": "64GB", "note": null}`
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if a.Price == nil || *a.Price != 1200 {
		t.Errorf("Price = %v, want 1200", a.Price)
	}
	if a.Currency != "UZS" {
		t.Errorf("Currency = %q, want UZS", a.Currency)
	}
	if a.Title != "Redmi 9" {
		t.Errorf("Title = %q", a.Title)
	}
	if a.Extra["memory"] != "64GB" {
		t.Errorf("Extra[memory] = %v", a.Extra["memory"])
	}
	if _, ok := a.Extra["note"]; ok {
		t.Error("null extension keys should be dropped")
	}
	if !a.HasPrice() {
		t.Error("HasPrice() = false, want true")
	}
}

func TestAttributes_NonNumericPrice(t *testing.T) {
	var a Attributes
	if err := json.Unmarshal([]byte(`{"price": "kelishilgan", "currency": "USD"}`), &a); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if a.Price != nil {
		t.Errorf("Price = %v, want nil", *a.Price)
	}
	if a.HasPrice() {
		t.Error("HasPrice() = true without a price")
	}
}

func TestAttributes_JSONFlat(t *testing.T) {
	price := 450.0
	a := Attributes{
		Price:    &price,
		Currency: "USD",
		Category: "phone",
		Extra:    map[string]any{"memory": "128GB", "price": "ignored"},
	}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if flat["price"] != 450.0 {
		t.Errorf("price = %v, want 450", flat["price"])
	}
	if flat["memory"] != "128GB" {
		t.Errorf("memory = %v", flat["memory"])
	}
	if _, ok := flat["title"]; ok {
		t.Error("empty title should be omitted")
	}
}
