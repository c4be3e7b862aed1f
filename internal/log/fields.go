package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldTransactionID = "transaction_id"
	FieldMerchantID    = "merchant_id"
	FieldBrand         = "brand"
	FieldCounterparty  = "counterparty"
	FieldPeriodStart   = "period_start"
	FieldPeriodEnd     = "period_end"
	FieldPeriodLabel   = "period_label"
	FieldCount         = "count"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentIngest    = "ingest"
	ComponentAnalytics = "analytics"
	ComponentDedup     = "dedup"
)

// Operations defines standard operation names
const (
	OpResolve  = "resolve"
	OpDetect   = "detect"
	OpForecast = "forecast"
	OpDedup    = "dedup"
	OpExport   = "export"
	OpConsume  = "consume"
	OpPublish  = "publish"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithResolution adds the fields describing one merchant resolution.
func (f LogFields) WithResolution(transactionID, counterparty, brand string, merchantID *string) LogFields {
	f[FieldTransactionID] = transactionID
	f[FieldCounterparty] = counterparty
	f[FieldBrand] = brand
	if merchantID != nil {
		f[FieldMerchantID] = *merchantID
	}
	return f
}

// WithPeriod adds financial month fields.
func (f LogFields) WithPeriod(start, end, label string) LogFields {
	f[FieldPeriodStart] = start
	f[FieldPeriodEnd] = end
	f[FieldPeriodLabel] = label
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
