package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 大模型客户端的模拟实现，供各包测试使用
// 请求选项不参与参数匹配
type MockClient struct {
	mock.Mock
}

// MockClient_Expecter 类型安全的期望设置入口
type MockClient_Expecter struct {
	mock *mock.Mock
}

// EXPECT 返回期望设置入口
func (_m *MockClient) EXPECT() *MockClient_Expecter {
	return &MockClient_Expecter{mock: &_m.Mock}
}

// Chat provides a mock function with given fields: ctx, messages
func (_m *MockClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	ret := _m.Called(ctx, messages)

	if rf, ok := ret.Get(0).(func(context.Context, []Message) (*Response, error)); ok {
		return rf(ctx, messages)
	}
	var r0 *Response
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*Response)
	}
	return r0, ret.Error(1)
}

// MockClient_Chat_Call Chat 调用的期望
type MockClient_Chat_Call struct {
	*mock.Call
}

// Chat 设置 Chat 的期望
func (_e *MockClient_Expecter) Chat(ctx interface{}, messages interface{}) *MockClient_Chat_Call {
	return &MockClient_Chat_Call{Call: _e.mock.On("Chat", ctx, messages)}
}

func (_c *MockClient_Chat_Call) Return(resp *Response, err error) *MockClient_Chat_Call {
	_c.Call.Return(resp, err)
	return _c
}

func (_c *MockClient_Chat_Call) RunAndReturn(run func(context.Context, []Message) (*Response, error)) *MockClient_Chat_Call {
	_c.Call.Return(run)
	return _c
}

// Name provides a mock function with no fields
func (_m *MockClient) Name() string {
	ret := _m.Called()

	if rf, ok := ret.Get(0).(func() string); ok {
		return rf()
	}
	return ret.String(0)
}

// MockClient_Name_Call Name 调用的期望
type MockClient_Name_Call struct {
	*mock.Call
}

// Name 设置 Name 的期望
func (_e *MockClient_Expecter) Name() *MockClient_Name_Call {
	return &MockClient_Name_Call{Call: _e.mock.On("Name")}
}

func (_c *MockClient_Name_Call) Return(name string) *MockClient_Name_Call {
	_c.Call.Return(name)
	return _c
}

// NewMockClient 创建模拟客户端，并在测试结束时断言期望
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
