package indicator

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Type 选择指标类型及其参数形状。
type Type string

const (
	TypeSMA        Type = "sma"
	TypeEMA        Type = "ema"
	TypeBollinger  Type = "bollinger"
	TypeRSI        Type = "rsi"
	TypeMACD       Type = "macd"
	TypeStochastic Type = "stochastic"
	TypeATR        Type = "atr"
	TypeATRPercent Type = "atr_percent"
	TypeMomentum   Type = "momentum"
	TypeVolume     Type = "volume"
)

// Params 是按指标类型区分的参数联合体。参数合法性在配置编辑时校验，
// 纯计算函数内部不再检查。
type Params interface {
	Type() Type
	Validate() error
}

type SMAParams struct {
	Period int `json:"period" mapstructure:"period"`
}

type EMAParams struct {
	Period int `json:"period" mapstructure:"period"`
}

type BollingerParams struct {
	Period int     `json:"period" mapstructure:"period"`
	StdDev float64 `json:"std_dev" mapstructure:"std_dev"`
}

type RSIParams struct {
	Period int `json:"period" mapstructure:"period"`
}

type MACDParams struct {
	Fast   int `json:"fast" mapstructure:"fast"`
	Slow   int `json:"slow" mapstructure:"slow"`
	Signal int `json:"signal" mapstructure:"signal"`
}

type StochasticParams struct {
	KPeriod int `json:"k_period" mapstructure:"k_period"`
	DPeriod int `json:"d_period" mapstructure:"d_period"`
}

type ATRParams struct {
	Period int `json:"period" mapstructure:"period"`
}

type ATRPercentParams struct {
	Period int `json:"period" mapstructure:"period"`
}

type MomentumParams struct {
	Periods []int `json:"periods" mapstructure:"periods"`
}

type VolumeParams struct{}

func (SMAParams) Type() Type        { return TypeSMA }
func (EMAParams) Type() Type        { return TypeEMA }
func (BollingerParams) Type() Type  { return TypeBollinger }
func (RSIParams) Type() Type        { return TypeRSI }
func (MACDParams) Type() Type       { return TypeMACD }
func (StochasticParams) Type() Type { return TypeStochastic }
func (ATRParams) Type() Type        { return TypeATR }
func (ATRPercentParams) Type() Type { return TypeATRPercent }
func (MomentumParams) Type() Type   { return TypeMomentum }
func (VolumeParams) Type() Type     { return TypeVolume }

func (p SMAParams) Validate() error { return positivePeriod("sma", p.Period) }
func (p EMAParams) Validate() error { return positivePeriod("ema", p.Period) }

func (p BollingerParams) Validate() error {
	if err := positivePeriod("bollinger", p.Period); err != nil {
		return err
	}
	if p.StdDev <= 0 {
		return fmt.Errorf("bollinger: std_dev 必须为正，收到 %v", p.StdDev)
	}
	return nil
}

func (p RSIParams) Validate() error { return positivePeriod("rsi", p.Period) }

func (p MACDParams) Validate() error {
	if p.Fast <= 0 || p.Slow <= 0 || p.Signal <= 0 {
		return fmt.Errorf("macd: fast/slow/signal 必须为正，收到 %d/%d/%d", p.Fast, p.Slow, p.Signal)
	}
	if p.Fast >= p.Slow {
		return fmt.Errorf("macd: fast(%d) 必须小于 slow(%d)", p.Fast, p.Slow)
	}
	return nil
}

func (p StochasticParams) Validate() error {
	if p.KPeriod <= 0 || p.DPeriod <= 0 {
		return fmt.Errorf("stochastic: k/d 周期必须为正，收到 %d/%d", p.KPeriod, p.DPeriod)
	}
	return nil
}

func (p ATRParams) Validate() error        { return positivePeriod("atr", p.Period) }
func (p ATRPercentParams) Validate() error { return positivePeriod("atr_percent", p.Period) }

func (p MomentumParams) Validate() error {
	if len(p.Periods) == 0 {
		return fmt.Errorf("momentum: periods 不能为空")
	}
	for _, v := range p.Periods {
		if v <= 0 {
			return fmt.Errorf("momentum: 周期必须为正，收到 %d", v)
		}
	}
	return nil
}

func (VolumeParams) Validate() error { return nil }

func positivePeriod(name string, period int) error {
	if period <= 0 {
		return fmt.Errorf("%s: period 必须为正，收到 %d", name, period)
	}
	return nil
}

// DecodeParams 将松散的 JSON/YAML 参数表解码为对应类型的参数结构，
// 并完成编辑时校验。
func DecodeParams(typ Type, raw map[string]any) (Params, error) {
	var p Params
	switch typ {
	case TypeSMA:
		p = &SMAParams{}
	case TypeEMA:
		p = &EMAParams{}
	case TypeBollinger:
		p = &BollingerParams{}
	case TypeRSI:
		p = &RSIParams{}
	case TypeMACD:
		p = &MACDParams{}
	case TypeStochastic:
		p = &StochasticParams{}
	case TypeATR:
		p = &ATRParams{}
	case TypeATRPercent:
		p = &ATRPercentParams{}
	case TypeMomentum:
		p = &MomentumParams{}
	case TypeVolume:
		p = &VolumeParams{}
	default:
		return nil, fmt.Errorf("indicator: unknown type %q", typ)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("indicator %s: 参数解码失败: %w", typ, err)
	}
	out := deref(p)
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func deref(p Params) Params {
	switch v := p.(type) {
	case *SMAParams:
		return *v
	case *EMAParams:
		return *v
	case *BollingerParams:
		return *v
	case *RSIParams:
		return *v
	case *MACDParams:
		return *v
	case *StochasticParams:
		return *v
	case *ATRParams:
		return *v
	case *ATRPercentParams:
		return *v
	case *MomentumParams:
		p := *v
		p.Periods = append([]int(nil), p.Periods...)
		sort.Ints(p.Periods)
		return p
	case *VolumeParams:
		return *v
	default:
		return p
	}
}
