// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gputime provides the public API for GPU timestamp instrumentation.
//
// A GPUTime is driven by a Vulkan layer or replayer: each hooked entry point
// forwards to the matching On* method, passing the device functions the hook
// needs (see package vk). At every frame boundary the frame's timestamps are
// read back and added to rolling statistics.
//
// Example:
//
//	gt := gputime.New(gputime.WithLogger(logger))
//	_ = gt.OnCreateDevice(device, period, createQueryPool, resetQueryPool)
//	...
//	res, err := gt.OnQueueSubmit(submits, gputime.SubmitHooks{
//	    DeviceWaitIdle:      deviceWaitIdle,
//	    ResetQueryPool:      resetQueryPool,
//	    GetQueryPoolResults: getQueryPoolResults,
//	})
//	if err == nil && res.ContainsFrameBoundary {
//	    fmt.Println(gt.GetStatsString())
//	}
package gputime

import (
	"github.com/born-ml/gputime/internal/config"
	"github.com/born-ml/gputime/internal/gputime"
	"github.com/born-ml/gputime/internal/metrics"
)

// GPUTime tracks command buffers and reconciles their timestamps.
type GPUTime = gputime.GPUTime

// Option configures a GPUTime.
type Option = gputime.Option

// SubmitHooks are the device entry points OnQueueSubmit may need.
type SubmitHooks = gputime.SubmitHooks

// SubmitResult describes what OnQueueSubmit observed.
type SubmitResult = gputime.SubmitResult

// DeviceError reports a device entry point that returned a failure code.
type DeviceError = gputime.DeviceError

// Stats summarises one series of durations, in milliseconds.
type Stats = metrics.Stats

// Config controls the instrumentation.
type Config = config.Config

// FrameDelimiter is the default debug label marking the end of a frame.
const FrameDelimiter = config.FrameDelimiter

// InvalidCount is returned by GetCmdRenderPassCount for an unknown position.
const InvalidCount = metrics.InvalidCount

// Errors returned by hooks. Match them with errors.Is.
var (
	ErrInvalidDevice       = gputime.ErrInvalidDevice
	ErrDeviceMismatch      = gputime.ErrDeviceMismatch
	ErrDeviceActive        = gputime.ErrDeviceActive
	ErrAlreadyTracked      = gputime.ErrAlreadyTracked
	ErrNotTracked          = gputime.ErrNotTracked
	ErrReusableUnsupported = gputime.ErrReusableUnsupported
	ErrNilLabel            = gputime.ErrNilLabel
	ErrNilHook             = gputime.ErrNilHook
	ErrSlotsExhausted      = gputime.ErrSlotsExhausted
	ErrRenderPassOrder     = gputime.ErrRenderPassOrder
	ErrResultsNotReady     = gputime.ErrResultsNotReady
	ErrResultUnavailable   = gputime.ErrResultUnavailable
)

// New creates a GPUTime. Without options it is enabled, logs nothing and
// uses DefaultConfig.
func New(opts ...Option) *GPUTime {
	return gputime.New(opts...)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// WithLogger, WithConfig and WithRetryTimer configure New.
var (
	WithLogger     = gputime.WithLogger
	WithConfig     = gputime.WithConfig
	WithRetryTimer = gputime.WithRetryTimer
)
