package model

import "time"

// PairingSession is the short-lived handshake record created when a CLI asks
// for a pairing code. It is mutated exactly once, on redemption.
type PairingSession struct {
	SessionID string               `json:"sessionId"`
	Code      string               `json:"code"`
	PairingID string               `json:"pairingId"`
	Status    PairingSessionStatus `json:"status"`
	CreatedAt time.Time            `json:"createdAt"`
	ExpiresAt time.Time            `json:"expiresAt"`
}

// PairingConnection is the durable binding between a pairing id and a remote
// device. Its TTL is refreshed by activity; without one, no request for the
// pairing id is accepted. The device token never leaves the relay.
type PairingConnection struct {
	PairingID   string    `json:"pairingId"`
	DeviceToken string    `json:"-"`
	PairedAt    time.Time `json:"pairedAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}
