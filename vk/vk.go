// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package vk exposes the Vulkan handles, flags and entry-point signatures
// that package gputime hooks observe. Hosts bind the function types to their
// own dispatch tables.
package vk

import "github.com/born-ml/gputime/internal/vk"

// Handles.
type (
	Device        = vk.Device
	Queue         = vk.Queue
	CommandPool   = vk.CommandPool
	CommandBuffer = vk.CommandBuffer
	QueryPool     = vk.QueryPool
)

// NullHandle is the value of an unset handle of any type.
const NullHandle = vk.NullHandle

// Enumerations and flags.
type (
	CommandBufferLevel      = vk.CommandBufferLevel
	CommandBufferUsageFlags = vk.CommandBufferUsageFlags
	PipelineStageFlags      = vk.PipelineStageFlags
	QueryType               = vk.QueryType
	QueryResultFlags        = vk.QueryResultFlags
	SubpassContents         = vk.SubpassContents
	Result                  = vk.Result
)

const (
	CommandBufferLevelPrimary   = vk.CommandBufferLevelPrimary
	CommandBufferLevelSecondary = vk.CommandBufferLevelSecondary

	CommandBufferUsageOneTimeSubmit      = vk.CommandBufferUsageOneTimeSubmit
	CommandBufferUsageRenderPassContinue = vk.CommandBufferUsageRenderPassContinue
	CommandBufferUsageSimultaneousUse    = vk.CommandBufferUsageSimultaneousUse

	PipelineStageTopOfPipe    = vk.PipelineStageTopOfPipe
	PipelineStageBottomOfPipe = vk.PipelineStageBottomOfPipe

	QueryTypeTimestamp = vk.QueryTypeTimestamp

	QueryResult64Bit            = vk.QueryResult64Bit
	QueryResultWait             = vk.QueryResultWait
	QueryResultWithAvailability = vk.QueryResultWithAvailability
	QueryResultPartial          = vk.QueryResultPartial

	Success                   = vk.Success
	NotReady                  = vk.NotReady
	Timeout                   = vk.Timeout
	ErrorOutOfHostMemory      = vk.ErrorOutOfHostMemory
	ErrorOutOfDeviceMemory    = vk.ErrorOutOfDeviceMemory
	ErrorInitializationFailed = vk.ErrorInitializationFailed
	ErrorDeviceLost           = vk.ErrorDeviceLost
)

// Structures.
type (
	CommandBufferAllocateInfo = vk.CommandBufferAllocateInfo
	SubmitInfo                = vk.SubmitInfo
	DebugUtilsLabel           = vk.DebugUtilsLabel
	RenderPassBeginInfo       = vk.RenderPassBeginInfo
	SubpassBeginInfo          = vk.SubpassBeginInfo
	SubpassEndInfo            = vk.SubpassEndInfo
	QueryPoolCreateInfo       = vk.QueryPoolCreateInfo
)

// Device entry points supplied by the host.
type (
	CreateQueryPoolFunc     = vk.CreateQueryPoolFunc
	DestroyQueryPoolFunc    = vk.DestroyQueryPoolFunc
	ResetQueryPoolFunc      = vk.ResetQueryPoolFunc
	CmdWriteTimestampFunc   = vk.CmdWriteTimestampFunc
	DeviceWaitIdleFunc      = vk.DeviceWaitIdleFunc
	QueueWaitIdleFunc       = vk.QueueWaitIdleFunc
	GetQueryPoolResultsFunc = vk.GetQueryPoolResultsFunc
)
