// Package payloadindex precomputes, per message type, which field numbers
// carry payload data directly and which carry it transitively, so the wire
// rewriter never has to inspect a message type it cannot possibly care
// about.
package payloadindex

import (
	"strings"

	"github.com/jhump/protoreflect/desc"
)

const (
	// PayloadType is the sentinel singular payload message (P in spec.md):
	// temporal.api.common.v1.Payload, a {metadata map<string,bytes>; data
	// bytes} submessage.
	PayloadType = "temporal.api.common.v1.Payload"

	// PayloadsType is the sentinel repeated-payload wrapper (Ps in spec.md):
	// temporal.api.common.v1.Payloads, a message whose only field is a
	// repeated Payload at field number 1.
	PayloadsType = "temporal.api.common.v1.Payloads"

	// SearchAttributesType is the indexed attributes container (SA in
	// spec.md): temporal.api.common.v1.SearchAttributes, optionally
	// excluded from indexing by configuration.
	SearchAttributesType = "temporal.api.common.v1.SearchAttributes"
)

type fieldKey struct {
	message string
	number  int32
}

// Index is the immutable, process-scoped classification of every field in
// every payload-reachable message type. Built once at startup from a
// descriptor.Store; read-only thereafter.
type Index struct {
	direct            map[fieldKey]string // field -> PayloadType or PayloadsType
	transitive        map[fieldKey]string // field -> transitive target type
	typesWithPayloads map[string]bool
}

// Options configures index construction.
type Options struct {
	// ScanPackagePrefix restricts indexing to messages in files whose
	// package begins with this prefix. Other messages are retained for
	// method lookup (by the descriptor store) but not indexed here.
	ScanPackagePrefix string

	// ExcludeSearchAttributes, when true, treats SearchAttributesType as
	// if it had no payload fields, transitively suppressing any field
	// whose only path to a payload passes through it.
	ExcludeSearchAttributes bool
}

// Build walks every message (including nested messages) of every file
// descriptor whose package begins with opts.ScanPackagePrefix and classifies
// every field as direct, transitive, or neither.
func Build(files []*desc.FileDescriptor, opts Options) *Index {
	idx := &Index{
		direct:            make(map[fieldKey]string),
		transitive:        make(map[fieldKey]string),
		typesWithPayloads: make(map[string]bool),
	}

	allMessages := make(map[string]*desc.MessageDescriptor)
	var roots []*desc.MessageDescriptor
	for _, fd := range files {
		if !strings.HasPrefix(fd.GetPackage()+".", opts.ScanPackagePrefix) && opts.ScanPackagePrefix != "" {
			continue
		}
		msgs := collectMessages(fd.GetMessageTypes())
		roots = append(roots, msgs...)
	}
	// The reachability query (hasPayloadReachable) needs to resolve a
	// field's submessage type back to a descriptor even if that type lives
	// in a file outside the scanned prefix (e.g. a shared common-types
	// file); build a lookup over every file handed in, not just the
	// in-prefix subset.
	for _, fd := range files {
		for _, md := range collectMessages(fd.GetMessageTypes()) {
			allMessages[md.GetFullyQualifiedName()] = md
		}
	}

	for _, md := range roots {
		classifyMessage(md, allMessages, opts, idx)
	}

	return idx
}

func collectMessages(msgs []*desc.MessageDescriptor) []*desc.MessageDescriptor {
	var out []*desc.MessageDescriptor
	for _, md := range msgs {
		out = append(out, md)
		out = append(out, collectMessages(md.GetNestedMessageTypes())...)
	}
	return out
}

func classifyMessage(md *desc.MessageDescriptor, all map[string]*desc.MessageDescriptor, opts Options, idx *Index) {
	name := md.GetFullyQualifiedName()
	if opts.ExcludeSearchAttributes && name == SearchAttributesType {
		return
	}
	hasPayloads := false

	for _, fd := range md.GetFields() {
		key := fieldKey{message: name, number: fd.GetNumber()}

		if fd.GetMessageType() == nil {
			continue // scalar field, never direct nor transitive
		}
		targetName := fd.GetMessageType().GetFullyQualifiedName()

		if targetName == PayloadType || targetName == PayloadsType {
			idx.direct[key] = targetName
			hasPayloads = true
			continue
		}

		if opts.ExcludeSearchAttributes && targetName == SearchAttributesType {
			continue
		}

		visited := map[string]bool{name: true}
		if hasPayloadReachable(targetName, all, opts, visited) {
			idx.transitive[key] = targetName
			hasPayloads = true
		}
	}

	if hasPayloads {
		idx.typesWithPayloads[name] = true
	}
}

// hasPayloadReachable reports whether typeName's descendant descriptor
// graph contains at least one direct payload field. visited tracks the
// in-progress call stack so that a type already being explored contributes
// false to its own subquery — this breaks cycles without marking a type as
// reachable purely via itself.
func hasPayloadReachable(typeName string, all map[string]*desc.MessageDescriptor, opts Options, visited map[string]bool) bool {
	if typeName == PayloadType || typeName == PayloadsType {
		return true
	}
	if opts.ExcludeSearchAttributes && typeName == SearchAttributesType {
		return false
	}
	if visited[typeName] {
		return false
	}
	md, ok := all[typeName]
	if !ok {
		return false
	}
	visited[typeName] = true
	defer delete(visited, typeName)

	for _, fd := range md.GetFields() {
		if fd.GetMessageType() == nil {
			continue
		}
		target := fd.GetMessageType().GetFullyQualifiedName()
		if target == PayloadType || target == PayloadsType {
			return true
		}
		if opts.ExcludeSearchAttributes && target == SearchAttributesType {
			continue
		}
		if hasPayloadReachable(target, all, opts, visited) {
			return true
		}
	}
	return false
}

// MessageHasPayloads reports whether the named message has at least one
// direct or transitive payload field.
func (idx *Index) MessageHasPayloads(name string) bool {
	return idx.typesWithPayloads[name]
}

// IsPayload reports whether field number fieldNo of message name is a
// direct payload field (its submessage type is P or Ps).
func (idx *Index) IsPayload(name string, fieldNo int32) bool {
	_, ok := idx.direct[fieldKey{message: name, number: fieldNo}]
	return ok
}

// DirectTargetType returns the sentinel submessage type (PayloadType or
// PayloadsType) of a direct payload field, so the rewriter knows whether to
// hand the body straight to the codec or enter the repeated-wrapper
// sub-walker.
func (idx *Index) DirectTargetType(name string, fieldNo int32) (string, bool) {
	target, ok := idx.direct[fieldKey{message: name, number: fieldNo}]
	return target, ok
}

// HasTransitivePayloads reports whether field number fieldNo of message
// name is a submessage whose descendant graph contains a payload, without
// itself being direct.
func (idx *Index) HasTransitivePayloads(name string, fieldNo int32) bool {
	_, ok := idx.transitive[fieldKey{message: name, number: fieldNo}]
	return ok
}

// TransitiveTargetType returns the submessage type the rewriter should
// recurse into for a transitively-interesting field.
func (idx *Index) TransitiveTargetType(name string, fieldNo int32) (string, bool) {
	target, ok := idx.transitive[fieldKey{message: name, number: fieldNo}]
	return target, ok
}

// GetTransformableFieldNumbers returns every field number of name that is
// either direct or transitive. O(fields-of-type), unlike the other O(1)
// lookups, since it must enumerate rather than probe a single key.
func (idx *Index) GetTransformableFieldNumbers(name string) map[int32]struct{} {
	out := make(map[int32]struct{})
	for k := range idx.direct {
		if k.message == name {
			out[k.number] = struct{}{}
		}
	}
	for k := range idx.transitive {
		if k.message == name {
			out[k.number] = struct{}{}
		}
	}
	return out
}
