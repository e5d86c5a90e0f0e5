package contracts

// Destination describes where a message should be delivered or where a
// subscription should be established. Queue is required for outbound sends;
// Topic and Exchange are optional broker routing hints.
type Destination struct {
	Queue    string `json:"queue,omitempty"`
	Topic    string `json:"topic,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}

// IsZero reports whether the destination carries no routing information.
func (d Destination) IsZero() bool {
	return d.Queue == "" && d.Topic == "" && d.Exchange == ""
}
