package model

type Entities struct {
	Symptoms    []string `json:"symptoms"`
	Medications []string `json:"medications"`
	Conditions  []string `json:"conditions"`
	ProductName string   `json:"product_name"`
}
