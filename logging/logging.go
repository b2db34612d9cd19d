// Package logging provides a small structured-logging helper shared by every
// package in this module, wrapping logrus with the function/package fields
// every call site is expected to attach.
package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Helper carries the standard fields (package, function) that every log
// line in this module attaches, plus whatever a call site adds on top.
type Helper struct {
	pkg      string
	function string
	fields   logrus.Fields
}

// New returns a Helper scoped to pkg and function, e.g.
// logging.New("routing", "AddContact").
func New(pkg, function string) *Helper {
	return &Helper{
		pkg:      pkg,
		function: function,
		fields: logrus.Fields{
			"package":  pkg,
			"function": function,
		},
	}
}

// WithField returns a copy of h with an additional field.
func (h *Helper) WithField(key string, value interface{}) *Helper {
	fields := make(logrus.Fields, len(h.fields)+1)
	for k, v := range h.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Helper{pkg: h.pkg, function: h.function, fields: fields}
}

// WithError returns a copy of h with error detail attached.
func (h *Helper) WithError(err error) *Helper {
	return h.WithField("error", err.Error())
}

func (h *Helper) Debug(msg string) { logrus.WithFields(h.fields).Debug(msg) }
func (h *Helper) Info(msg string)  { logrus.WithFields(h.fields).Info(msg) }
func (h *Helper) Warn(msg string)  { logrus.WithFields(h.fields).Warn(msg) }
func (h *Helper) Error(msg string) { logrus.WithFields(h.fields).Error(msg) }

// Entry logs function entry at Debug, following the reference helper's
// entry/exit tracing convention.
func (h *Helper) Entry() { logrus.WithFields(h.fields).Debug(fmt.Sprintf("enter %s", h.function)) }

// Exit logs function exit at Debug.
func (h *Helper) Exit() { logrus.WithFields(h.fields).Debug(fmt.Sprintf("exit %s", h.function)) }

// IDPreview renders a short hex preview of an identifier-like byte slice for
// logging, avoiding dumping full 20-byte IDs into every log line.
func IDPreview(data []byte) string {
	n := 4
	if len(data) < n {
		n = len(data)
	}
	return fmt.Sprintf("%x..", data[:n])
}
