// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package history

import (
	"fmt"
	"slices"

	"github.com/go-logr/logr"

	"github.com/antimetal/historybuffer/pkg/errors"
)

// ChangeFunc is invoked synchronously after every mutation of a buffer.
type ChangeFunc func()

type subscription struct {
	key string
	fn  ChangeFunc
}

// notifier keeps change callbacks in registration order, one per key.
type notifier struct {
	subs   []subscription
	logger logr.Logger
}

func newNotifier(logger logr.Logger) *notifier {
	return &notifier{logger: logger}
}

func (n *notifier) register(key string, fn ChangeFunc) error {
	if fn == nil {
		return fmt.Errorf("cannot register nil callback for %q", key)
	}
	if slices.ContainsFunc(n.subs, func(s subscription) bool { return s.key == key }) {
		n.logger.Info("change callback already registered, keeping the original", "key", key)
		return fmt.Errorf("%w: %q", errors.ErrDuplicateSubscription, key)
	}
	n.subs = append(n.subs, subscription{key: key, fn: fn})
	return nil
}

func (n *notifier) deregister(key string) bool {
	before := len(n.subs)
	n.subs = slices.DeleteFunc(n.subs, func(s subscription) bool { return s.key == key })
	return len(n.subs) != before
}

// notify calls every callback once. Callbacks may (de)register while running;
// changes take effect from the next notification.
func (n *notifier) notify() {
	for _, s := range slices.Clone(n.subs) {
		s.fn()
	}
}

func (n *notifier) keys() []string {
	keys := make([]string, len(n.subs))
	for i, s := range n.subs {
		keys[i] = s.key
	}
	return keys
}
