package feed

import (
	"errors"
	"fmt"

	"chartcore/internal/market"
)

// ErrContractViolation 标记调用方契约错误（空 symbol、非法周期等），
// 运行期不可恢复，应在开发阶段暴露。
var ErrContractViolation = errors.New("contract violation")

// NoDataError 表示批量抓取对某个周期返回了空或缺失的数据。
// 可恢复：下一次 load/refresh 会重试，同批其它周期不受影响。
type NoDataError struct {
	Symbol     string
	Resolution market.Resolution
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data for %s@%s", e.Symbol, e.Resolution)
}

// FetchError 表示网络/传输层失败。可恢复：已缓存的其它周期数据仍然可用。
type FetchError struct {
	Symbol     string
	Resolution market.Resolution
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s@%s failed: %v", e.Symbol, e.Resolution, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsNoData 判断错误是否为单周期空数据。
func IsNoData(err error) bool {
	var nd *NoDataError
	return errors.As(err, &nd)
}

// IsFetchError 判断错误是否为传输层失败。
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
