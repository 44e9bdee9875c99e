package meter

import "time"

// Data is one reading of the meter in front of the water heater.
type Data struct {
	Id        string    `json:"id"`
	Model     string    `json:"model"`
	Time      time.Time `json:"time"`
	Current_W float64   `json:"w"`
	Total_WH  float64   `json:"wh,omitempty"`
	L1_A      float64   `json:"l1_a,omitempty"`
	L2_A      float64   `json:"l2_a,omitempty"`
	L3_A      float64   `json:"l3_a,omitempty"`
}
