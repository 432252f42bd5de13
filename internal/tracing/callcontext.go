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

// Package tracing carries the dispatcher's CallContext: a span bounded to
// the lifetime of a single inbound dispatch (§9), tagged with the message's
// creator principal id and passed explicitly to the request interpreter.
package tracing

import (
	"github.com/opentracing/opentracing-go"
	jaeger "github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// NewDefaultTracer builds a jaeger-client-go tracer with a constant sampler
// and a null reporter, suitable as the dispatcher's default tracer when the
// embedding application hasn't wired its own. It never talks to a network
// agent; tests and local-only deployments can use it as-is, and production
// callers are expected to pass their own opentracing.Tracer instead.
func NewDefaultTracer(serviceName string) (opentracing.Tracer, func(), error) {
	cfg := jaegercfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans: false,
		},
	}
	tracer, closer, err := cfg.NewTracer(jaegercfg.Reporter(nullReporter{}))
	if err != nil {
		return nil, nil, err
	}
	return tracer, func() { _ = closer.Close() }, nil
}

// nullReporter discards every finished span; it backs NewDefaultTracer so
// the default tracer never attempts network I/O.
type nullReporter struct{}

func (nullReporter) Report(span *jaeger.Span) {}
func (nullReporter) Close()                  {}

// CallContext is the per-dispatch context the Dispatcher starts before
// invoking a provider's request interpreter and finishes once the
// interpreter returns. Publications forwarded to subscription listeners get
// no CallContext.
type CallContext struct {
	// CreatorUserID is the principal id taken from the inbound message.
	CreatorUserID string
	span          opentracing.Span
}

// Start begins a span for one inbound dispatch, tagged with creatorUserID.
func Start(tracer opentracing.Tracer, operationName, creatorUserID string) *CallContext {
	span := tracer.StartSpan(operationName)
	span.SetTag("creator.user_id", creatorUserID)
	return &CallContext{CreatorUserID: creatorUserID, span: span}
}

// Finish ends the span. It is safe to call on a nil *CallContext.
func (c *CallContext) Finish() {
	if c == nil || c.span == nil {
		return
	}
	c.span.Finish()
}
