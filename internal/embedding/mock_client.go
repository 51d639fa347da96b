package embedding

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 嵌入客户端的模拟实现，供各包测试使用
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

// Embed provides a mock function with given fields: ctx, text
func (_m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ret := _m.Called(ctx, text)

	if rf, ok := ret.Get(0).(func(context.Context, string) ([]float32, error)); ok {
		return rf(ctx, text)
	}
	var r0 []float32
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]float32)
	}
	return r0, ret.Error(1)
}

// MockClient_Embed_Call Embed 调用的期望
type MockClient_Embed_Call struct {
	*mock.Call
}

// Embed 设置 Embed 的期望
func (_e *MockClient_Expecter) Embed(ctx interface{}, text interface{}) *MockClient_Embed_Call {
	return &MockClient_Embed_Call{Call: _e.mock.On("Embed", ctx, text)}
}

func (_c *MockClient_Embed_Call) Return(v []float32, err error) *MockClient_Embed_Call {
	_c.Call.Return(v, err)
	return _c
}

func (_c *MockClient_Embed_Call) RunAndReturn(run func(context.Context, string) ([]float32, error)) *MockClient_Embed_Call {
	_c.Call.Return(run)
	return _c
}

// EmbedBatch provides a mock function with given fields: ctx, texts
func (_m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ret := _m.Called(ctx, texts)

	if rf, ok := ret.Get(0).(func(context.Context, []string) ([][]float32, error)); ok {
		return rf(ctx, texts)
	}
	var r0 [][]float32
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([][]float32)
	}
	return r0, ret.Error(1)
}

// MockClient_EmbedBatch_Call EmbedBatch 调用的期望
type MockClient_EmbedBatch_Call struct {
	*mock.Call
}

// EmbedBatch 设置 EmbedBatch 的期望
func (_e *MockClient_Expecter) EmbedBatch(ctx interface{}, texts interface{}) *MockClient_EmbedBatch_Call {
	return &MockClient_EmbedBatch_Call{Call: _e.mock.On("EmbedBatch", ctx, texts)}
}

func (_c *MockClient_EmbedBatch_Call) Return(v [][]float32, err error) *MockClient_EmbedBatch_Call {
	_c.Call.Return(v, err)
	return _c
}

func (_c *MockClient_EmbedBatch_Call) RunAndReturn(run func(context.Context, []string) ([][]float32, error)) *MockClient_EmbedBatch_Call {
	_c.Call.Return(run)
	return _c
}

// Name provides a mock function with no fields
func (_m *MockClient) Name() string {
	ret := _m.Called()
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

// NewMockClient 创建模拟客户端并在测试结束时校验期望
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
