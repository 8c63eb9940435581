package descriptor

import (
	"context"
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
)

// LoadFromReflection populates the store by querying addr's gRPC server
// reflection service, as an alternative to LoadFile when no compiled
// descriptor set is available on disk. Every service the backend reports
// (except the reflection service itself) is indexed the same way Load
// indexes a FileDescriptorSet.
func (s *Store) LoadFromReflection(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return &LoadError{Path: addr, Err: fmt.Errorf("dial: %w", err)}
	}
	defer conn.Close()

	client := grpcreflect.NewClientV1Alpha(ctx, reflectionpb.NewServerReflectionClient(conn))
	defer client.Reset()

	svcNames, err := client.ListServices()
	if err != nil {
		return &LoadError{Path: addr, Err: fmt.Errorf("list services: %w", err)}
	}

	methods := make(map[string]ServiceMethodInfo)
	messages := make(map[string]*desc.MessageDescriptor)
	seenFiles := make(map[string]*desc.FileDescriptor)

	var addFile func(fd *desc.FileDescriptor)
	addFile = func(fd *desc.FileDescriptor) {
		if _, ok := seenFiles[fd.GetName()]; ok {
			return
		}
		seenFiles[fd.GetName()] = fd
		indexMessages(fd.GetMessageTypes(), messages)
		for _, dep := range fd.GetDependencies() {
			addFile(dep)
		}
	}

	for _, svcName := range svcNames {
		if svcName == "grpc.reflection.v1alpha.ServerReflection" {
			continue
		}
		sd, err := client.ResolveService(svcName)
		if err != nil {
			continue
		}
		for _, md := range sd.GetMethods() {
			key := svcName + "/" + md.GetName()
			methods[key] = ServiceMethodInfo{
				RequestType:  md.GetInputType().GetFullyQualifiedName(),
				ResponseType: md.GetOutputType().GetFullyQualifiedName(),
			}
		}
		addFile(sd.GetFile())
	}

	files := make([]*desc.FileDescriptor, 0, len(seenFiles))
	for _, fd := range seenFiles {
		files = append(files, fd)
	}

	s.mu.Lock()
	s.methods = methods
	s.messages = messages
	s.files = files
	s.mu.Unlock()
	return nil
}
