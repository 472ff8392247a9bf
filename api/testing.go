// Package api
// Author: momentics
//
// Mock/testing utilities for all core contracts; extendable for new interfaces.

package api

// MockChannel is a test and mock-friendly implementation of Channel.
type MockChannel struct {
	CreateRegionFunc      func(sizeBytes int) (Region, int32, error)
	DestroyRegionFunc     func(id int32)
	SetConsumerRegionFunc func(id int32)
	GetStateFunc          func() State
	FlushFunc             func(putOffset int32)
	FlushSyncFunc         func(putOffset, expectedGetOffset int32) State
}

func (m *MockChannel) CreateRegion(sizeBytes int) (Region, int32, error) {
	return m.CreateRegionFunc(sizeBytes)
}
func (m *MockChannel) DestroyRegion(id int32)     { m.DestroyRegionFunc(id) }
func (m *MockChannel) SetConsumerRegion(id int32) { m.SetConsumerRegionFunc(id) }
func (m *MockChannel) GetState() State            { return m.GetStateFunc() }
func (m *MockChannel) Flush(putOffset int32)      { m.FlushFunc(putOffset) }
func (m *MockChannel) FlushSync(putOffset, expectedGetOffset int32) State {
	return m.FlushSyncFunc(putOffset, expectedGetOffset)
}

var _ Channel = (*MockChannel)(nil)

// Extend with mocks for all additional core contracts as architecture evolves.
