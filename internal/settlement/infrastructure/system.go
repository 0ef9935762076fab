// Package infrastructure 提供引擎外围的系统适配器。
package infrastructure

import (
	"fmt"
	"time"

	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/settlementengine/internal/settlement/application"
)

type systemClock struct{}

func NewSystemClock() application.Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

type snowflakeIDGen struct{}

func NewSnowflakeIDGenerator() application.IDGenerator { return snowflakeIDGen{} }

func (snowflakeIDGen) NextID() string {
	return fmt.Sprintf("EVT-%d", idgen.GenID())
}
