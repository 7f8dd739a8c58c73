// Copyright 2021-2022 The rentalhub Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ingress turns publish requests from out-of-process producers into hub broadcasts
package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alwitt/rentalhub/broadcast"
	"github.com/alwitt/rentalhub/common"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
)

// ErrUnknownEventKind the event kind has no publish operation
var ErrUnknownEventKind = errors.New("unknown event kind")

// Dispatcher decodes and validates publish requests, then invokes the matching
// publish operation on the hub
type Dispatcher struct {
	common.Component
	hub      broadcast.Publisher
	validate *validator.Validate
}

// GetDispatcher define a new dispatcher
func GetDispatcher(instance string, hub broadcast.Publisher) (*Dispatcher, error) {
	if hub == nil {
		return nil, fmt.Errorf("dispatcher requires a hub")
	}
	return &Dispatcher{
		Component: common.Component{LogTags: log.Fields{
			"module": "ingress", "component": "dispatcher", "instance": instance,
		}},
		hub:      hub,
		validate: validator.New(),
	}, nil
}

// Dispatch publish one event of the given kind, whose request is the JSON body
func (d *Dispatcher) Dispatch(ctxt context.Context, kind string, body []byte) error {
	localLogTags := d.GetLogTagsForContext(ctxt)
	if err := ctxt.Err(); err != nil {
		return err
	}

	cmd, ok := newCommand(kind)
	if !ok {
		log.WithFields(localLogTags).Warnf("Unknown event kind '%s'", kind)
		return fmt.Errorf("%w: '%s'", ErrUnknownEventKind, kind)
	}

	if body = bytes.TrimSpace(body); len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, cmd); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf("Unable to parse %s request", kind)
		return fmt.Errorf("unable to parse %s request: %w", kind, err)
	}
	if err := d.validate.Struct(cmd); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf("Invalid %s request", kind)
		return fmt.Errorf("invalid %s request: %w", kind, err)
	}

	cmd.apply(d.hub)
	log.WithFields(localLogTags).Debugf("Dispatched %s", kind)
	return nil
}
