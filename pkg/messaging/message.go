// Copyright joynr-sub007 Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package messaging holds the wire-adjacent, but not wire-format-owning,
// types the core shares with its transport: the message envelope, the
// Message Router contract, and the multicast id grammar.
package messaging

// Type is the messageType of an envelope.
type Type int

const (
	Request Type = iota
	OneWayRequest
	Reply
	SubscriptionRequest
	SubscriptionReply
	SubscriptionStop
	Publication
	MulticastPublication
)

func (t Type) String() string {
	switch t {
	case Request:
		return "REQUEST"
	case OneWayRequest:
		return "ONE_WAY_REQUEST"
	case Reply:
		return "REPLY"
	case SubscriptionRequest:
		return "SUBSCRIPTION_REQUEST"
	case SubscriptionReply:
		return "SUBSCRIPTION_REPLY"
	case SubscriptionStop:
		return "SUBSCRIPTION_STOP"
	case Publication:
		return "PUBLICATION"
	case MulticastPublication:
		return "MULTICAST_PUBLICATION"
	default:
		return "UNKNOWN"
	}
}

// Message is the format-stable envelope exchanged with the transport; the
// on-wire byte layout and serialization of Payload are delegated (spec §1,
// §6) — the core only ever inspects the envelope fields.
type Message struct {
	MessageType    Type
	SenderID       string
	RecipientID    string
	RequestReplyID string
	ExpiryDateMs   int64
	CreatorUserID  string
	Payload        []byte

	// InterfaceName and InterfaceMajorVersion select the request interpreter
	// for REQUEST/ONE_WAY_REQUEST messages; unused for other message types.
	InterfaceName        string
	InterfaceMajorVersion uint32

	// SubscriptionID identifies the target subscription for SUBSCRIPTION_REPLY
	// and unicast PUBLICATION messages; MulticastID does the same for
	// MULTICAST_PUBLICATION messages.
	SubscriptionID string
	MulticastID    string
}

// Router is the external Message Router contract (§6) consumed by the
// subscription manager and the dispatcher.
type Router interface {
	// Route enqueues a message for delivery.
	Route(msg Message) error

	// AddMulticastReceiver registers subscriberID as a receiver of
	// multicastID published by providerID. onSuccess/onError are invoked
	// exactly once with the router's outcome.
	AddMulticastReceiver(multicastID, subscriberID, providerID string, onSuccess func(), onError func(error))

	// RemoveMulticastReceiver unregisters a previously added receiver.
	RemoveMulticastReceiver(multicastID, subscriberID, providerID string, onSuccess func(), onError func(error))
}
