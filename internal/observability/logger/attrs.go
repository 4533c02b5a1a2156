// Copyright 2026 The TenantGrid Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import "log/slog"

// Common attribute keys for consistent logging across the application

// Request attributes
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func Method(method string) slog.Attr {
	return slog.String("method", method)
}

func Path(path string) slog.Attr {
	return slog.String("path", path)
}

func RemoteAddr(addr string) slog.Attr {
	return slog.String("remote_addr", addr)
}

func UserAgent(ua string) slog.Attr {
	return slog.String("user_agent", ua)
}

func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

func Duration(ms int64) slog.Attr {
	return slog.Int64("duration_ms", ms)
}

// Tenancy attributes
func TenantID(id string) slog.Attr {
	return slog.String("tenant_id", id)
}

func ActorID(id string) slog.Attr {
	return slog.String("actor_id", id)
}

func SubscriptionID(id string) slog.Attr {
	return slog.String("subscription_id", id)
}

func PlanCode(code string) slog.Attr {
	return slog.String("plan_code", code)
}

// Licensing attributes
func ModuleCode(code string) slog.Attr {
	return slog.String("module_code", code)
}

func FeatureCode(code string) slog.Attr {
	return slog.String("feature_code", code)
}

func Decision(d string) slog.Attr {
	return slog.String("decision", d)
}

func Reason(r string) slog.Attr {
	return slog.String("reason", r)
}

// Quota attributes
func QuotaType(t string) slog.Attr {
	return slog.String("quota_type", t)
}

func Delta(d int64) slog.Attr {
	return slog.Int64("delta", d)
}

func Usage(u int64) slog.Attr {
	return slog.Int64("current_usage", u)
}

func Allocated(a int64) slog.Attr {
	return slog.Int64("allocated_quantity", a)
}

// Error attributes
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func ErrorType(errType string) slog.Attr {
	return slog.String("error_type", errType)
}

// Component attributes
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Operation(op string) slog.Attr {
	return slog.String("operation", op)
}

// String creates a generic string attribute
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}
