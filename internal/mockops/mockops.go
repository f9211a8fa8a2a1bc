// Package mockops provides a gomock-style mock of the dflow operator
// contract, hand-written in the shape mockgen would produce for
// dflow.Operator/dflow.Activator/dflow.SyncProcessor, for use in tests that
// need to assert on call order or argument values rather than just wiring a
// small fake struct.
package mockops

import (
	"reflect"

	"github.com/dataflowgraph/dflow"
	"github.com/golang/mock/gomock"
)

// MockOperator is a mock of the combined Operator/Activator/SyncProcessor
// interfaces.
type MockOperator struct {
	ctrl     *gomock.Controller
	recorder *MockOperatorMockRecorder
}

// MockOperatorMockRecorder is the mock recorder for MockOperator.
type MockOperatorMockRecorder struct {
	mock *MockOperator
}

// NewMockOperator creates a new mock instance.
func NewMockOperator(ctrl *gomock.Controller) *MockOperator {
	mock := &MockOperator{ctrl: ctrl}
	mock.recorder = &MockOperatorMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockOperator) EXPECT() *MockOperatorMockRecorder {
	return m.recorder
}

// Setup mocks base method.
func (m *MockOperator) Setup(v *dflow.Vertex) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Setup", v)
	ret0, _ := ret[0].(error)
	return ret0
}

// Setup indicates an expected call of Setup.
func (mr *MockOperatorMockRecorder) Setup(v interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Setup", reflect.TypeOf((*MockOperator)(nil).Setup), v)
}

// OnActivate mocks base method.
func (m *MockOperator) OnActivate(v *dflow.Vertex) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "OnActivate", v)
	ret0, _ := ret[0].(error)
	return ret0
}

// OnActivate indicates an expected call of OnActivate.
func (mr *MockOperatorMockRecorder) OnActivate(v interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "OnActivate", reflect.TypeOf((*MockOperator)(nil).OnActivate), v)
}

// Process mocks base method.
func (m *MockOperator) Process(v *dflow.Vertex) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Process", v)
	ret0, _ := ret[0].(error)
	return ret0
}

// Process indicates an expected call of Process.
func (mr *MockOperatorMockRecorder) Process(v interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Process", reflect.TypeOf((*MockOperator)(nil).Process), v)
}
