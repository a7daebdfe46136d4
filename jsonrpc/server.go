// Package jsonrpc implements a JSONRPC2.0 compliant server as described in https://www.jsonrpc.org/specification
package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/NethermindEth/katana-go/utils"
	"github.com/sourcegraph/conc/pool"
)

const (
	InvalidJSON    = -32700 // Invalid JSON was received by the server.
	InvalidRequest = -32600 // The JSON sent is not a valid Request object.
	MethodNotFound = -32601 // The method does not exist / is not available.
	InvalidParams  = -32602 // Invalid method parameter(s).
	InternalError  = -32603 // Internal JSON-RPC error.
)

var (
	ErrInvalidID = errors.New("id should be a string or an integer")

	contextInterface = reflect.TypeOf((*context.Context)(nil)).Elem()
)

type Request struct {
	Version string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      any    `json:"id,omitempty"`
}

type response struct {
	Version string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// CloneWithData returns a copy of e carrying data.
func (e *Error) CloneWithData(data any) *Error {
	newErr := *e
	newErr.Data = data
	return &newErr
}

func Err(code int, data any) *Error {
	switch code {
	case InvalidJSON:
		return &Error{Code: InvalidJSON, Message: "Parse error", Data: data}
	case InvalidRequest:
		return &Error{Code: InvalidRequest, Message: "Invalid Request", Data: data}
	case MethodNotFound:
		return &Error{Code: MethodNotFound, Message: "Method Not Found", Data: data}
	case InvalidParams:
		return &Error{Code: InvalidParams, Message: "Invalid Params", Data: data}
	default:
		return &Error{Code: InternalError, Message: "Internal Error", Data: data}
	}
}

func (r *Request) isSane() error {
	if r.Version != "2.0" {
		return errors.New("unsupported RPC request version")
	}
	if r.Method == "" {
		return errors.New("no method specified")
	}

	if r.Params != nil {
		paramType := reflect.TypeOf(r.Params)
		if paramType.Kind() != reflect.Slice && paramType.Kind() != reflect.Map {
			return errors.New("params should be an array or an object")
		}
	}

	if r.ID != nil {
		idType := reflect.TypeOf(r.ID)
		floating := idType.Name() == "Number" && strings.Contains(r.ID.(json.Number).String(), ".")
		if (idType.Kind() != reflect.String && idType.Name() != "Number") || floating {
			return ErrInvalidID
		}
	}

	return nil
}

type Parameter struct {
	Name     string
	Optional bool
}

type Method struct {
	Name    string
	Params  []Parameter
	Handler any
	// Subscription methods keep running after they respond and are not bound by the request timeout.
	Subscription bool

	// The method takes a context as its first parameter.
	// Set upon successful registration.
	needsContext bool
}

type Validator interface {
	Struct(any) error
}

type Server struct {
	methods   map[string]Method
	validator Validator
	pool      *pool.Pool
	log       utils.SimpleLogger
	listener  EventListener

	timeout    time.Duration
	timeoutErr *Error
}

// NewServer instantiates a JSONRPC server
func NewServer(poolMaxGoroutines int, log utils.SimpleLogger) *Server {
	return &Server{
		log:        log,
		methods:    make(map[string]Method),
		pool:       pool.New().WithMaxGoroutines(poolMaxGoroutines),
		listener:   &SelectiveListener{},
		timeoutErr: Err(InternalError, "request timed out"),
	}
}

// WithValidator registers a validator to validate handler struct arguments
func (s *Server) WithValidator(validator Validator) *Server {
	s.validator = validator
	return s
}

// WithListener registers an EventListener
func (s *Server) WithListener(listener EventListener) *Server {
	s.listener = listener
	return s
}

// WithRequestTimeout bounds how long the server waits for a handler. A request that runs out of time is
// answered with timeoutErr, its handler context is cancelled.
func (s *Server) WithRequestTimeout(timeout time.Duration, timeoutErr *Error) *Server {
	s.timeout = timeout
	if timeoutErr != nil {
		s.timeoutErr = timeoutErr
	}
	return s
}

// RegisterMethods verifies and creates an endpoint for each method.
func (s *Server) RegisterMethods(methods ...Method) error {
	for idx := range methods {
		if err := s.RegisterMethod(methods[idx]); err != nil {
			return err
		}
	}
	return nil
}

// RegisterMethod verifies and creates an endpoint that the server recognises.
//
// - name is the method name
// - handler is the function to be called when a request is received for the
// associated method. It should have (any, *jsonrpc.Error) as its return type
// - paramNames are the names of parameters in the order that they are expected
// by the handler
func (s *Server) RegisterMethod(method Method) error {
	handlerT := reflect.TypeOf(method.Handler)
	if handlerT == nil || handlerT.Kind() != reflect.Func {
		return errors.New("handler must be a function")
	}
	numArgs := handlerT.NumIn()
	if numArgs > 0 {
		if handlerT.In(0).Implements(contextInterface) {
			numArgs--
			method.needsContext = true
		}
	}
	if numArgs != len(method.Params) {
		return errors.New("number of non-context function params and param names must match")
	}
	if handlerT.NumOut() != 2 {
		return errors.New("handler must return 2 values")
	}
	if handlerT.Out(1) != reflect.TypeOf(&Error{}) {
		return errors.New("second return value must be a *jsonrpc.Error")
	}

	// The method is valid. Mutate the appropriate fields and register on the server.
	s.methods[method.Name] = method

	return nil
}

type connection struct {
	w io.Writer
}

func (c *connection) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

func (c *connection) Equal(other Conn) bool {
	o, ok := other.(*connection)
	return ok && o == c
}

// HandleReadWriter reads a JSON-RPC request from rw and writes the response back. Handlers reach rw
// through ConnFromContext, which lets them push notifications after they returned.
func (s *Server) HandleReadWriter(ctx context.Context, rw io.ReadWriter) error {
	conn, ok := rw.(Conn)
	if !ok {
		conn = &connection{w: rw}
	}
	resp, err := s.handle(withConn(ctx, conn), rw)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	_, err = rw.Write(resp)
	return err
}

// HandleReader reads a JSON-RPC request from reader and returns the response, nil for notifications.
func (s *Server) HandleReader(ctx context.Context, reader io.Reader) ([]byte, error) {
	return s.handle(ctx, reader)
}

// handle processes a request to the server.
// It returns the response in a byte array, only returns an
// error if it can not create the response byte array
func (s *Server) handle(ctx context.Context, reader io.Reader) ([]byte, error) {
	bufferedReader := bufio.NewReader(reader)
	requestIsBatch := isBatch(bufferedReader)
	res := &response{
		Version: "2.0",
	}

	dec := json.NewDecoder(bufferedReader)
	dec.UseNumber()

	if !requestIsBatch {
		req := new(Request)
		if jsonErr := dec.Decode(req); jsonErr != nil {
			if errors.Is(jsonErr, io.EOF) { // Connection closed.
				return nil, jsonErr
			}
			res.Error = Err(InvalidJSON, jsonErr.Error())
		} else if resObject, handleErr := s.handleRequest(ctx, req); handleErr != nil {
			if !errors.Is(handleErr, ErrInvalidID) {
				res.ID = req.ID
			}
			res.Error = Err(InvalidRequest, handleErr.Error())
		} else {
			res = resObject
		}
	} else {
		var batchReq []json.RawMessage

		if batchJSONErr := dec.Decode(&batchReq); batchJSONErr != nil {
			if errors.Is(batchJSONErr, io.EOF) { // Connection closed.
				return nil, batchJSONErr
			}
			res.Error = Err(InvalidJSON, batchJSONErr.Error())
		} else if len(batchReq) == 0 {
			res.Error = Err(InvalidRequest, "empty batch")
		} else {
			return s.handleBatchRequest(ctx, batchReq)
		}
	}

	if res == nil {
		return nil, nil
	}
	return json.Marshal(res)
}

func (s *Server) handleBatchRequest(ctx context.Context, batchReq []json.RawMessage) ([]byte, error) {
	var (
		responses = make([]json.RawMessage, len(batchReq))
		wg        sync.WaitGroup
	)

	addResponse := func(idx int, response any) {
		if responseJSON, err := json.Marshal(response); err != nil {
			s.log.Errorw("Failed to marshal response", "err", err)
		} else {
			responses[idx] = responseJSON
		}
	}

	for idx, rawReq := range batchReq {
		reqDec := json.NewDecoder(bytes.NewBuffer(rawReq))
		reqDec.UseNumber()

		req := new(Request)
		if err := reqDec.Decode(req); err != nil {
			addResponse(idx, &response{
				Version: "2.0",
				Error:   Err(InvalidRequest, err.Error()),
			})
			continue
		}

		wg.Add(1)
		s.pool.Go(func() {
			defer wg.Done()

			resp, err := s.handleRequest(ctx, req)
			if err != nil {
				resp = &response{
					Version: "2.0",
					Error:   Err(InvalidRequest, err.Error()),
				}
				if !errors.Is(err, ErrInvalidID) {
					resp.ID = req.ID
				}
			}
			// for notification request response is nil
			if resp != nil {
				addResponse(idx, resp)
			}
		})
	}

	wg.Wait()

	// Responses keep the order of the batch, notifications leave no entry.
	ordered := make([]json.RawMessage, 0, len(responses))
	for _, resp := range responses {
		if resp != nil {
			ordered = append(ordered, resp)
		}
	}
	// according to the spec if there are no response objects server must not return empty array
	if len(ordered) == 0 {
		return nil, nil
	}

	return json.Marshal(ordered)
}

func isBatch(reader *bufio.Reader) bool {
	for {
		char, err := reader.Peek(1)
		if err != nil {
			break
		}
		if char[0] == ' ' || char[0] == '\t' || char[0] == '\r' || char[0] == '\n' {
			if discarded, err := reader.Discard(1); discarded != 1 || err != nil {
				break
			}
			continue
		}
		return char[0] == '['
	}
	return false
}

func isNil(i any) bool {
	return i == nil || reflect.ValueOf(i).IsNil()
}

func (s *Server) handleRequest(ctx context.Context, req *Request) (*response, error) {
	s.log.Debugw("Serving RPC request", "method", req.Method, "id", req.ID)
	if err := req.isSane(); err != nil {
		return nil, err
	}

	res := &response{
		Version: "2.0",
		ID:      req.ID,
	}

	calledMethod, found := s.methods[req.Method]
	if !found {
		res.Error = Err(MethodNotFound, nil)
		s.listener.OnRequestFailed(req.Method, res.Error)
		return res, nil
	}

	s.listener.OnNewRequest(req.Method)
	start := time.Now()
	defer func() {
		took := time.Since(start)
		s.listener.OnRequestHandled(req.Method, took)
		s.log.Debugw("Responding to RPC request", "method", req.Method, "id", req.ID, "took", took)
	}()

	if s.timeout > 0 && !calledMethod.Subscription {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	args, err := s.buildArguments(ctx, req.Params, calledMethod)
	if err != nil {
		res.Error = Err(InvalidParams, err.Error())
		s.listener.OnRequestFailed(req.Method, res.Error)
		return res, nil
	}

	tuple, timedOut := s.call(ctx, calledMethod, args)
	if res.ID == nil { // notification
		return nil, nil
	}
	if timedOut {
		res.Error = s.timeoutErr
		s.log.Warnw("RPC request timed out", "method", req.Method, "timeout", s.timeout)
		s.listener.OnRequestTimedOut(req.Method)
		s.listener.OnRequestFailed(req.Method, res.Error)
		return res, nil
	}

	if errAny := tuple[1].Interface(); !isNil(errAny) {
		res.Error = errAny.(*Error)
		s.listener.OnRequestFailed(req.Method, res.Error)
		return res, nil
	}
	res.Result = tuple[0].Interface()
	return res, nil
}

// call runs the handler. When the server has a request timeout the handler runs in its own goroutine and
// is abandoned once ctx expires.
func (s *Server) call(ctx context.Context, method Method, args []reflect.Value) ([]reflect.Value, bool) {
	handler := reflect.ValueOf(method.Handler)
	if s.timeout <= 0 || method.Subscription {
		return handler.Call(args), false
	}

	done := make(chan []reflect.Value, 1)
	go func() {
		done <- handler.Call(args)
	}()
	select {
	case tuple := <-done:
		return tuple, false
	case <-ctx.Done():
		return nil, true
	}
}

func (s *Server) buildArguments(ctx context.Context, params any, method Method) ([]reflect.Value, error) {
	handlerType := reflect.TypeOf(method.Handler)

	numArgs := handlerType.NumIn()
	args := make([]reflect.Value, 0, numArgs)
	addContext := 0

	if method.needsContext {
		args = append(args, reflect.ValueOf(ctx))
		addContext = 1
	}

	if isNil(params) {
		for i, configuredParam := range method.Params {
			if !configuredParam.Optional {
				return nil, errors.New("missing non-optional param field")
			}
			args = append(args, reflect.New(handlerType.In(i+addContext)).Elem())
		}
		return args, nil
	}

	switch reflect.TypeOf(params).Kind() {
	case reflect.Slice:
		paramsList := params.([]any)

		if len(paramsList) > numArgs-addContext {
			return nil, errors.New("missing/unexpected params in list")
		}

		for i := range method.Params {
			var v reflect.Value
			if i < len(paramsList) {
				var err error
				v, err = s.parseParam(paramsList[i], handlerType.In(i+addContext))
				if err != nil {
					return nil, err
				}
			} else if method.Params[i].Optional {
				v = reflect.New(handlerType.In(i + addContext)).Elem()
			} else {
				return nil, errors.New("missing/unexpected params in list")
			}
			args = append(args, v)
		}
	case reflect.Map:
		paramsMap := params.(map[string]any)

		for i, configuredParam := range method.Params {
			var v reflect.Value
			if param, found := paramsMap[configuredParam.Name]; found {
				var err error
				v, err = s.parseParam(param, handlerType.In(i+addContext))
				if err != nil {
					return nil, err
				}
			} else if configuredParam.Optional {
				// optional parameter
				v = reflect.New(handlerType.In(i + addContext)).Elem()
			} else {
				return nil, errors.New("missing non-optional param")
			}

			args = append(args, v)
		}
	default:
		return nil, errors.New("impossible param type: check request.isSane")
	}
	return args, nil
}

func (s *Server) parseParam(param any, t reflect.Type) (reflect.Value, error) {
	handlerParam := reflect.New(t)
	valueMarshaled, err := json.Marshal(param) // we have to marshal the value into JSON again
	if err != nil {
		return reflect.ValueOf(nil), err
	}
	err = json.Unmarshal(valueMarshaled, handlerParam.Interface())
	if err != nil {
		return reflect.ValueOf(nil), err
	}

	elem := handlerParam.Elem()
	if s.validator != nil {
		if err = s.validateParam(elem); err != nil {
			return reflect.ValueOf(nil), err
		}
	}

	return elem, nil
}

func (s *Server) validateParam(param reflect.Value) error {
	kind := param.Kind()
	switch {
	case kind == reflect.Struct ||
		(kind == reflect.Pointer && !param.IsNil() && param.Elem().Kind() == reflect.Struct):
		/* struct or a struct pointer */
		if err := s.validator.Struct(param.Interface()); err != nil {
			return err
		}
	case kind == reflect.Slice || kind == reflect.Array:
		for i := range param.Len() {
			if err := s.validateParam(param.Index(i)); err != nil {
				return err
			}
		}
	case kind == reflect.Map:
		for _, key := range param.MapKeys() {
			if err := s.validateParam(param.MapIndex(key)); err != nil {
				return err
			}
		}
	}

	return nil
}
