package notifications

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-docchat/core/notifications"

var logger = otelslog.NewLogger(scopeName)
