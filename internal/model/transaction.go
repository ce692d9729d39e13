package model

import "time"

// Channel identifies the terminal type a transaction was initiated from.
type Channel int

const (
	ChannelATM       Channel = 1
	ChannelPOS       Channel = 2
	ChannelECommerce Channel = 8
)

// KnownChannels lists the channels the monitor understands, in display order.
var KnownChannels = []Channel{ChannelATM, ChannelPOS, ChannelECommerce}

// Known reports whether c is one of KnownChannels.
func (c Channel) Known() bool {
	for _, k := range KnownChannels {
		if c == k {
			return true
		}
	}
	return false
}

// Source selects which transaction table a read targets.
type Source string

const (
	SourceCurrent    Source = "current"
	SourceHistorical Source = "historical"
)

// ParseSource maps user input onto a Source, defaulting to current.
func ParseSource(v string) (Source, bool) {
	switch Source(v) {
	case "", SourceCurrent:
		return SourceCurrent, true
	case SourceHistorical, "hist":
		return SourceHistorical, true
	default:
		return "", false
	}
}

// TransactionRecord is one normalized row of the switch transaction log.
type TransactionRecord struct {
	Date          string     `json:"udate"`
	Time          string     `json:"time"`
	Timestamp     *time.Time `json:"datetime"`
	IssuerCode    int        `json:"iss_inst"`
	AcquirerCode  int        `json:"acq_inst"`
	Channel       Channel    `json:"terminal_type"`
	ResponseCode  int        `json:"resp"`
	ResponseValid bool       `json:"-"`
	Sequence      int64      `json:"transx_number"`
}

// IsSuccess reports an approval. Unparseable response codes are declines.
func (r TransactionRecord) IsSuccess() bool {
	return r.ResponseValid && (r.ResponseCode == -1 || r.ResponseCode == 0)
}

// IsRefusalCode reports whether the record carries a specific decline reason.
func (r TransactionRecord) IsRefusalCode() bool {
	return r.ResponseValid && r.ResponseCode != -1 && r.ResponseCode != 0
}
