// Package calcpb holds the protobuf schema of the calculator service.
//
// The schema is assembled at init with the protoreflect builder rather
// than generated by protoc, then registered in the global registry so
// that gRPC server reflection can describe it to clients. Messages are
// dynamicpb messages over these descriptors.
package calcpb

import (
	"fmt"

	"github.com/jhump/protoreflect/desc/builder"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/organic-programming/calculate/internal/dispatch"
)

const (
	FileName    = "calculate/v1/calculator.proto"
	PackageName = "calculate.v1"
	ServiceName = PackageName + ".CalculatorService"

	MethodCalculate      = "Calculate"
	MethodListOperations = "ListOperations"

	FullMethodCalculate      = "/" + ServiceName + "/" + MethodCalculate
	FullMethodListOperations = "/" + ServiceName + "/" + MethodListOperations
)

var (
	File protoreflect.FileDescriptor

	CalculateRequest       protoreflect.MessageDescriptor
	CalculateResponse      protoreflect.MessageDescriptor
	ListOperationsRequest  protoreflect.MessageDescriptor
	ListOperationsResponse protoreflect.MessageDescriptor
	Operation              protoreflect.MessageDescriptor

	Service protoreflect.ServiceDescriptor
)

func init() {
	fd, err := buildFile()
	if err != nil {
		panic(fmt.Sprintf("calcpb: %v", err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("calcpb: register %s: %v", FileName, err))
	}

	File = fd
	msgs := fd.Messages()
	CalculateRequest = msgs.ByName("CalculateRequest")
	CalculateResponse = msgs.ByName("CalculateResponse")
	ListOperationsRequest = msgs.ByName("ListOperationsRequest")
	ListOperationsResponse = msgs.ByName("ListOperationsResponse")
	Operation = msgs.ByName("Operation")
	Service = fd.Services().ByName("CalculatorService")
}

func buildFile() (protoreflect.FileDescriptor, error) {
	calcReq := builder.NewMessage("CalculateRequest").
		AddField(builder.NewField("operation", builder.FieldTypeString()).SetNumber(1)).
		AddField(builder.NewField("operands", builder.FieldTypeString()).SetNumber(2).SetRepeated())

	calcResp := builder.NewMessage("CalculateResponse").
		AddField(builder.NewField("operation", builder.FieldTypeString()).SetNumber(1)).
		AddField(builder.NewField("operands", builder.FieldTypeDouble()).SetNumber(2).SetRepeated()).
		AddField(builder.NewField("value", builder.FieldTypeDouble()).SetNumber(3)).
		AddField(builder.NewField("display", builder.FieldTypeString()).SetNumber(4))

	listReq := builder.NewMessage("ListOperationsRequest")

	operation := builder.NewMessage("Operation").
		AddField(builder.NewField("name", builder.FieldTypeString()).SetNumber(1)).
		AddField(builder.NewField("arity", builder.FieldTypeInt32()).SetNumber(2)).
		AddField(builder.NewField("usage", builder.FieldTypeString()).SetNumber(3))

	listResp := builder.NewMessage("ListOperationsResponse").
		AddField(builder.NewField("operations", builder.FieldTypeMessage(operation)).SetNumber(1).SetRepeated())

	svc := builder.NewService("CalculatorService").
		AddMethod(builder.NewMethod(MethodCalculate,
			builder.RpcTypeMessage(calcReq, false),
			builder.RpcTypeMessage(calcResp, false))).
		AddMethod(builder.NewMethod(MethodListOperations,
			builder.RpcTypeMessage(listReq, false),
			builder.RpcTypeMessage(listResp, false)))

	built, err := builder.NewFile(FileName).
		SetPackageName(PackageName).
		SetProto3(true).
		AddMessage(calcReq).
		AddMessage(calcResp).
		AddMessage(listReq).
		AddMessage(operation).
		AddMessage(listResp).
		AddService(svc).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", FileName, err)
	}

	fd, err := protodesc.NewFile(built.AsFileDescriptorProto(), protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", FileName, err)
	}
	return fd, nil
}

// --- Calculate ---

// Calculation is the decoded form of a CalculateResponse.
type Calculation struct {
	Operation string
	Operands  []float64
	Value     float64
	Display   string
}

// NewCalculateRequest builds a CalculateRequest message.
func NewCalculateRequest(operation string, operands []string) *dynamicpb.Message {
	msg := dynamicpb.NewMessage(CalculateRequest)
	fields := CalculateRequest.Fields()
	msg.Set(fields.ByName("operation"), protoreflect.ValueOfString(operation))
	list := msg.Mutable(fields.ByName("operands")).List()
	for _, o := range operands {
		list.Append(protoreflect.ValueOfString(o))
	}
	return msg
}

// ReadCalculateRequest extracts the operation and raw operands.
func ReadCalculateRequest(msg proto.Message) (operation string, operands []string) {
	m := msg.ProtoReflect()
	fields := m.Descriptor().Fields()
	operation = m.Get(fields.ByName("operation")).String()
	list := m.Get(fields.ByName("operands")).List()
	operands = make([]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		operands = append(operands, list.Get(i).String())
	}
	return operation, operands
}

// NewCalculateResponse builds a CalculateResponse message.
func NewCalculateResponse(c Calculation) *dynamicpb.Message {
	msg := dynamicpb.NewMessage(CalculateResponse)
	fields := CalculateResponse.Fields()
	msg.Set(fields.ByName("operation"), protoreflect.ValueOfString(c.Operation))
	list := msg.Mutable(fields.ByName("operands")).List()
	for _, o := range c.Operands {
		list.Append(protoreflect.ValueOfFloat64(o))
	}
	msg.Set(fields.ByName("value"), protoreflect.ValueOfFloat64(c.Value))
	msg.Set(fields.ByName("display"), protoreflect.ValueOfString(c.Display))
	return msg
}

// ReadCalculateResponse decodes a CalculateResponse message.
func ReadCalculateResponse(msg proto.Message) Calculation {
	m := msg.ProtoReflect()
	fields := m.Descriptor().Fields()
	c := Calculation{
		Operation: m.Get(fields.ByName("operation")).String(),
		Value:     m.Get(fields.ByName("value")).Float(),
		Display:   m.Get(fields.ByName("display")).String(),
	}
	list := m.Get(fields.ByName("operands")).List()
	for i := 0; i < list.Len(); i++ {
		c.Operands = append(c.Operands, list.Get(i).Float())
	}
	return c
}

// DecodeCalculateResponse parses the protojson form of a CalculateResponse.
func DecodeCalculateResponse(data []byte) (Calculation, error) {
	msg := dynamicpb.NewMessage(CalculateResponse)
	if err := protojson.Unmarshal(data, msg); err != nil {
		return Calculation{}, fmt.Errorf("decode %s: %w", CalculateResponse.FullName(), err)
	}
	return ReadCalculateResponse(msg), nil
}

// --- ListOperations ---

// OperationInfo is the decoded form of an Operation message.
type OperationInfo struct {
	Name  string
	Arity int
	Usage string
}

// OperationInfosFrom converts dispatch table rows to their wire form.
func OperationInfosFrom(ops []dispatch.Operation) []OperationInfo {
	infos := make([]OperationInfo, 0, len(ops))
	for _, op := range ops {
		infos = append(infos, OperationInfo{Name: op.Name, Arity: op.Arity, Usage: op.Usage})
	}
	return infos
}

// NewListOperationsResponse builds a ListOperationsResponse message.
func NewListOperationsResponse(ops []OperationInfo) *dynamicpb.Message {
	msg := dynamicpb.NewMessage(ListOperationsResponse)
	list := msg.Mutable(ListOperationsResponse.Fields().ByName("operations")).List()
	fields := Operation.Fields()
	for _, op := range ops {
		elem := list.NewElement()
		entry := elem.Message()
		entry.Set(fields.ByName("name"), protoreflect.ValueOfString(op.Name))
		entry.Set(fields.ByName("arity"), protoreflect.ValueOfInt32(int32(op.Arity)))
		entry.Set(fields.ByName("usage"), protoreflect.ValueOfString(op.Usage))
		list.Append(elem)
	}
	return msg
}

// ReadListOperationsResponse decodes a ListOperationsResponse message.
func ReadListOperationsResponse(msg proto.Message) []OperationInfo {
	m := msg.ProtoReflect()
	list := m.Get(m.Descriptor().Fields().ByName("operations")).List()
	out := make([]OperationInfo, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		entry := list.Get(i).Message()
		fields := entry.Descriptor().Fields()
		out = append(out, OperationInfo{
			Name:  entry.Get(fields.ByName("name")).String(),
			Arity: int(entry.Get(fields.ByName("arity")).Int()),
			Usage: entry.Get(fields.ByName("usage")).String(),
		})
	}
	return out
}

// DecodeListOperationsResponse parses the protojson form of a
// ListOperationsResponse.
func DecodeListOperationsResponse(data []byte) ([]OperationInfo, error) {
	msg := dynamicpb.NewMessage(ListOperationsResponse)
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ListOperationsResponse.FullName(), err)
	}
	return ReadListOperationsResponse(msg), nil
}

// --- JSON ---

// MarshalJSON renders a message as protojson with every field present,
// so a zero value still shows up in the output.
func MarshalJSON(msg proto.Message, multiline bool) (string, error) {
	opts := protojson.MarshalOptions{EmitUnpopulated: true, Multiline: multiline}
	if multiline {
		opts.Indent = "  "
	}
	out, err := opts.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// MarshalRequestJSON renders a CalculateRequest as compact protojson.
func MarshalRequestJSON(operation string, operands []string) (string, error) {
	out, err := protojson.Marshal(NewCalculateRequest(operation, operands))
	if err != nil {
		return "", err
	}
	return string(out), nil
}
