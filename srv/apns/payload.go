/*
 * Copyright 2024 the apnsgate authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package apns is the caller-facing surface of the gateway client: payload
// construction and the Service tying the binary protocol pieces together.
package apns

import (
	"fmt"

	"github.com/pushgate/apnsgate/push"
	"github.com/pushgate/apnsgate/srv/apns/common"
)

// reservedKey is the top-level payload key owned by the gateway protocol.
// Custom keys must not collide with it.
const reservedKey = "aps"

// Alert is the structured form of a notification alert. Zero-valued optional
// fields are omitted from the encoding, never emitted as null.
type Alert struct {
	Body         string
	ActionLocKey string
	LocKey       string
	LocArgs      []string
	LaunchImage  string
}

func (a *Alert) dict() map[string]interface{} {
	d := map[string]interface{}{"body": a.Body}
	if a.ActionLocKey != "" {
		d["action-loc-key"] = a.ActionLocKey
	}
	if a.LocKey != "" {
		d["loc-key"] = a.LocKey
	}
	if len(a.LocArgs) > 0 {
		d["loc-args"] = a.LocArgs
	}
	if a.LaunchImage != "" {
		d["launch-image"] = a.LaunchImage
	}
	return d
}

// Payload is the application-data structure of one notification.
//
// Alert may be a plain string or an *Alert. Badge distinguishes "absent" from
// zero: nil leaves the badge alone, a pointer to 0 clears it. Custom holds
// caller top-level keys merged next to the reserved "aps" key.
type Payload struct {
	Alert            interface{}
	Badge            *int
	Sound            string
	ContentAvailable bool
	Custom           map[string]interface{}
}

// Badge is a convenience for building the Badge field of a Payload.
func Badge(n int) *int {
	return &n
}

func (p *Payload) dict() (map[string]interface{}, push.Error) {
	aps := make(map[string]interface{})
	switch alert := p.Alert.(type) {
	case nil:
	case string:
		aps["alert"] = alert
	case *Alert:
		aps["alert"] = alert.dict()
	default:
		return nil, push.NewBadNotificationWithDetails(fmt.Sprintf("alert must be a string or *Alert, got %T", p.Alert))
	}
	if p.Sound != "" {
		aps["sound"] = p.Sound
	}
	if p.Badge != nil {
		aps["badge"] = *p.Badge
	}
	if p.ContentAvailable {
		aps["content-available"] = 1
	}

	payload := make(map[string]interface{}, len(p.Custom)+1)
	for k, v := range p.Custom {
		if k == reservedKey {
			return nil, push.NewBadNotificationWithDetails(`custom key collides with reserved "aps" key`)
		}
		payload[k] = v
	}
	payload[reservedKey] = aps
	return payload, nil
}

// Marshal serializes the payload, enforcing the size ceiling. The check runs
// here, at construction time, so an oversized payload never reaches the
// network. A maxSize of 0 applies the default ceiling.
func (p *Payload) Marshal(maxSize int) ([]byte, push.Error) {
	if maxSize <= 0 {
		maxSize = common.DefaultMaxPayloadSize
	}
	d, perr := p.dict()
	if perr != nil {
		return nil, perr
	}
	encoded, err := common.MarshalJSONUnescaped(d)
	if err != nil {
		return nil, push.NewErrorf("failed to convert payload to JSON: %v", err)
	}
	if len(encoded) > maxSize {
		return nil, push.NewBadNotificationWithDetails(fmt.Sprintf("payload is too large: %d > %d bytes", len(encoded), maxSize))
	}
	return encoded, nil
}
