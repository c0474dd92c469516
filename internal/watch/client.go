package watch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edgeoftrust/watch-relay/internal/model"
)

// RemoteClient is the device-side facade: it queues decisions and delivers
// them through a managed connection. Decisions are always high priority so
// they jump ahead of anything else buffered during an outage.
type RemoteClient struct {
	manager   *ConnectionManager
	queue     *PriorityMessageQueue
	pairingID string
	deviceID  string
}

type decisionPayload struct {
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
	DeviceID  string `json:"deviceId,omitempty"`
}

func NewRemoteClient(manager *ConnectionManager, pairingID, deviceID string) *RemoteClient {
	return &RemoteClient{
		manager:   manager,
		queue:     NewPriorityMessageQueue(),
		pairingID: pairingID,
		deviceID:  deviceID,
	}
}

func (c *RemoteClient) Connect(ctx context.Context) error {
	return c.manager.Connect(ctx)
}

func (c *RemoteClient) Close() error {
	return c.manager.Close()
}

func (c *RemoteClient) Approve(requestID string) error {
	return c.enqueueDecision(requestID, true)
}

func (c *RemoteClient) Reject(requestID string) error {
	return c.enqueueDecision(requestID, false)
}

func (c *RemoteClient) enqueueDecision(requestID string, approved bool) error {
	payload, err := json.Marshal(decisionPayload{
		RequestID: requestID,
		Approved:  approved,
		DeviceID:  c.deviceID,
	})
	if err != nil {
		return err
	}
	c.queue.Enqueue(payload, PriorityHigh)
	return nil
}

// Flush makes one delivery pass over queued decisions. While disconnected it
// is a no-op: the queue exists to buffer decisions across an outage, so a
// pass that cannot reach the transport must not burn their retry budget.
func (c *RemoteClient) Flush(ctx context.Context) (sent, dropped int) {
	if c.manager.Status().State != StateConnected {
		return 0, 0
	}
	return c.queue.Drain(ctx, func(ctx context.Context, msg *QueuedMessage) error {
		var d decisionPayload
		if err := json.Unmarshal(msg.Payload, &d); err != nil {
			return err
		}
		path := fmt.Sprintf("/approval/%s/%s/respond", c.pairingID, d.RequestID)
		return c.manager.Send(ctx, path, msg.Payload)
	})
}

func (c *RemoteClient) Pending() int {
	return c.queue.Len()
}

// AllowsOneTapApprove reports whether a request may be approved with a single
// tap. High risk actions need an explicit confirmation step on the device.
func AllowsOneTapApprove(tier model.RiskTier) bool {
	return tier != model.RiskTierHigh
}
