// Package descriptor builds and serves the process-global schema used to
// locate service methods and message shapes from a compiled protobuf
// file-descriptor-set.
package descriptor

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// LoadError reports a startup-fatal failure building the descriptor store:
// unparseable bytes, a missing dependency, or a cycle preventing topological
// ordering.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("descriptor: load %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("descriptor: load: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Kind() string { return "DescriptorLoadError" }

// ServiceMethodInfo is the result of resolving an RPC method path to its
// request/response message types.
type ServiceMethodInfo struct {
	RequestType  string
	ResponseType string
}

// Store is an immutable, process-scoped index over a loaded
// FileDescriptorSet. It is safe for concurrent read access from every
// intercepted call once Load has returned.
type Store struct {
	mu       sync.RWMutex
	messages map[string]*desc.MessageDescriptor
	methods  map[string]ServiceMethodInfo
	files    []*desc.FileDescriptor
}

// New returns an empty store. Load must be called before it is used.
func New() *Store {
	return &Store{
		messages: make(map[string]*desc.MessageDescriptor),
		methods:  make(map[string]ServiceMethodInfo),
	}
}

// Load parses a serialized FileDescriptorSet, builds every file descriptor
// in dependency order, and atomically replaces the store's indices.
//
// CreateFileDescriptorsFromSet performs the topological build and reports a
// LoadError-wrapped failure if a file's declared dependencies cannot all be
// satisfied by descriptors already built (missing dependency or cycle).
func (s *Store) Load(serialized []byte) error {
	fds := &descriptorpb.FileDescriptorSet{}
	if err := proto.Unmarshal(serialized, fds); err != nil {
		return &LoadError{Err: fmt.Errorf("unmarshal file descriptor set: %w", err)}
	}

	fdMap, err := desc.CreateFileDescriptorsFromSet(fds)
	if err != nil {
		return &LoadError{Err: fmt.Errorf("build file descriptors: %w", err)}
	}

	messages := make(map[string]*desc.MessageDescriptor)
	methods := make(map[string]ServiceMethodInfo)
	files := make([]*desc.FileDescriptor, 0, len(fdMap))
	for _, fd := range fdMap {
		indexMessages(fd.GetMessageTypes(), messages)
		files = append(files, fd)
		for _, svc := range fd.GetServices() {
			for _, md := range svc.GetMethods() {
				key := svc.GetFullyQualifiedName() + "/" + md.GetName()
				methods[key] = ServiceMethodInfo{
					RequestType:  md.GetInputType().GetFullyQualifiedName(),
					ResponseType: md.GetOutputType().GetFullyQualifiedName(),
				}
			}
		}
	}

	s.mu.Lock()
	s.messages = messages
	s.methods = methods
	s.files = files
	s.mu.Unlock()
	return nil
}

// Files returns every file descriptor the store currently has loaded, for
// payloadindex.Build to walk. Safe to call only after Load/LoadFile/
// LoadFromReflection has returned successfully.
func (s *Store) Files() []*desc.FileDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files
}

// LoadFile reads path from disk and calls Load with its contents.
func (s *Store) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}
	if err := s.Load(b); err != nil {
		if le, ok := err.(*LoadError); ok {
			le.Path = path
			return le
		}
		return &LoadError{Path: path, Err: err}
	}
	return nil
}

func indexMessages(msgs []*desc.MessageDescriptor, out map[string]*desc.MessageDescriptor) {
	for _, md := range msgs {
		out[md.GetFullyQualifiedName()] = md
		indexMessages(md.GetNestedMessageTypes(), out)
	}
}

// LookupMethod resolves a method path of the form "/<service>/<method>" or
// "<service>/<method>" to its request/response type names. Any other shape,
// or an unknown service/method, is reported as a lookup miss rather than an
// error — the pipeline treats this as a PassthroughCondition.
func (s *Store) LookupMethod(path string) (ServiceMethodInfo, bool) {
	path = strings.TrimPrefix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 || idx == len(path)-1 {
		return ServiceMethodInfo{}, false
	}
	service, method := path[:idx], path[idx+1:]
	if service == "" || method == "" {
		return ServiceMethodInfo{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.methods[service+"/"+method]
	return info, ok
}

// LookupMessage returns the descriptor for a fully-qualified message name.
func (s *Store) LookupMessage(name string) (*desc.MessageDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.messages[name]
	return md, ok
}
