// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/AaronFeickert/tari-dan/hotstuff"
)

// loopbackMessaging is the dev-mode transport: messages to other nodes are
// logged and dropped. Real deployments plug a network transport into the
// same interface.
type loopbackMessaging struct {
	log log.Logger
}

var _ hotstuff.OutboundMessaging = (*loopbackMessaging)(nil)

func newLoopbackMessaging(logger log.Logger) *loopbackMessaging {
	return &loopbackMessaging{log: logger}
}

func (l *loopbackMessaging) Send(_ context.Context, to ids.NodeID, _ hotstuff.Message) error {
	l.log.Debug("dropping outbound message in loopback mode", zap.Stringer("to", to))
	return nil
}

func (l *loopbackMessaging) Multicast(ctx context.Context, to []ids.NodeID, msg hotstuff.Message) error {
	for _, peer := range to {
		if err := l.Send(ctx, peer, msg); err != nil {
			return err
		}
	}
	return nil
}
