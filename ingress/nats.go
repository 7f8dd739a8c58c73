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

package ingress

import (
	"context"
	"fmt"
	"strings"

	"github.com/alwitt/rentalhub/common"
	"github.com/alwitt/rentalhub/core"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATSIngressParams NATS ingress parameters
type NATSIngressParams struct {
	// SubjectPrefix events are read from "<SubjectPrefix>.<event kind>"
	SubjectPrefix string `validate:"required"`
	// QueueGroup optional queue group, so only one replica handles each event
	QueueGroup string
	// RequestIDHeader message header carrying the producer's request ID
	RequestIDHeader string
}

// NATSIngress subscribes to broadcast events published on NATS by
// out-of-process producers
type NATSIngress struct {
	common.Component
	client     *core.NatsClient
	dispatcher *Dispatcher
	params     NATSIngressParams
}

// GetNATSIngress define a new NATS ingress
func GetNATSIngress(
	client *core.NatsClient, dispatcher *Dispatcher, params NATSIngressParams,
) (*NATSIngress, error) {
	if client == nil {
		return nil, fmt.Errorf("NATS ingress requires a NATS client")
	}
	instance, err := newNATSIngress(dispatcher, params)
	if err != nil {
		return nil, err
	}
	instance.client = client
	return instance, nil
}

func newNATSIngress(dispatcher *Dispatcher, params NATSIngressParams) (*NATSIngress, error) {
	if err := validator.New().Struct(&params); err != nil {
		return nil, err
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("NATS ingress requires a dispatcher")
	}
	params.SubjectPrefix = strings.TrimSuffix(params.SubjectPrefix, ".")
	return &NATSIngress{
		Component: common.Component{LogTags: log.Fields{
			"module": "ingress", "component": "nats", "instance": params.SubjectPrefix,
		}},
		dispatcher: dispatcher,
		params:     params,
	}, nil
}

// Subject the wildcard subject the ingress subscribes to
func (n *NATSIngress) Subject() string {
	return fmt.Sprintf("%s.>", n.params.SubjectPrefix)
}

// Run subscribe and dispatch events until the context ends
func (n *NATSIngress) Run(ctxt context.Context) error {
	handler := func(msg *nats.Msg) { n.handleMessage(ctxt, msg) }
	var sub *nats.Subscription
	var err error
	if n.params.QueueGroup != "" {
		sub, err = n.client.NATs().QueueSubscribe(n.Subject(), n.params.QueueGroup, handler)
	} else {
		sub, err = n.client.NATs().Subscribe(n.Subject(), handler)
	}
	if err != nil {
		log.WithError(err).WithFields(n.LogTags).Errorf("Unable to subscribe to %s", n.Subject())
		return err
	}
	log.WithFields(n.LogTags).Infof("Listening for events on %s", n.Subject())

	<-ctxt.Done()

	if err := sub.Unsubscribe(); err != nil {
		log.WithError(err).WithFields(n.LogTags).Errorf("Unsubscribe from %s failed", n.Subject())
	}
	return nil
}

// kindOf the event kind is the last token of the subject
func (n *NATSIngress) kindOf(subject string) string {
	tokens := strings.Split(subject, ".")
	return tokens[len(tokens)-1]
}

// handleMessage dispatch one NATS message. Failures are logged only.
func (n *NATSIngress) handleMessage(ctxt context.Context, msg *nats.Msg) {
	reqID := ""
	if n.params.RequestIDHeader != "" && msg.Header != nil {
		reqID = msg.Header.Get(n.params.RequestIDHeader)
	}
	if reqID == "" {
		reqID = uuid.New().String()
	}
	ctxt = context.WithValue(ctxt, common.RequestParam{}, common.RequestParam{
		ID: reqID, Method: "NATS", URI: msg.Subject,
	})
	if err := n.dispatcher.Dispatch(ctxt, n.kindOf(msg.Subject), msg.Data); err != nil {
		log.WithError(err).WithFields(n.GetLogTagsForContext(ctxt)).Errorf(
			"Dropped event from %s", msg.Subject,
		)
	}
}
