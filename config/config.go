// Package config loads the technology and parameter tables from YAML and
// overlays them on the default sign-off scenario. Tables become explicit
// immutable values handed into every component; nothing here is ambient
// global state.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/serdeslab/linksim/link"
	"github.com/serdeslab/linksim/signoff"
)

// Environment variables that point at the table files. A .env file in the
// working directory is honored.
const (
	EnvTechFile   = "LINKSIM_TECH"
	EnvParamsFile = "LINKSIM_PARAMS"
)

// TechFile mirrors the technology table layout.
type TechFile struct {
	ImpedanceMatching struct {
		TargetZ0 float64 `yaml:"target_z0"`
		RxTermZ  float64 `yaml:"rx_term_z"`
	} `yaml:"impedance_matching"`

	EqualizationLegs struct {
		DFETapPwrMW   float64 `yaml:"dfe_tap_pwr_mw"`
		DFETapAreaUM2 float64 `yaml:"dfe_tap_area_um2"`
	} `yaml:"equalization_legs"`

	AnalogFrontEnd struct {
		CTLEPowerPerStageMW float64 `yaml:"ctle_power_per_stage_mw"`
		VGAPowerMW          float64 `yaml:"vga_power_mw"`
		ADC7BitPowerMW      float64 `yaml:"adc_7bit_power_mw"`
	} `yaml:"analog_front_end"`

	Clocking struct {
		PLLBasePowerMW   float64 `yaml:"pll_base_power_mw"`
		PLLPerMMPowerMW  float64 `yaml:"pll_per_mm_power_mw"`
		CDRPowerMW       float64 `yaml:"cdr_power_mw"`
		CDRBaselineDepth int     `yaml:"cdr_baseline_depth"`
		CDRUnrollWeight  float64 `yaml:"cdr_unroll_weight"`
	} `yaml:"clocking"`

	TxDriver struct {
		Legs          int     `yaml:"legs"`
		PerLegPowerMW float64 `yaml:"per_leg_power_mw"`
	} `yaml:"tx_driver"`

	Thermal struct {
		StaticMWAt25C    float64 `yaml:"static_mw_at_25c"`
		DynamicMWNominal float64 `yaml:"dynamic_mw_nominal"`
		HVT              bool    `yaml:"hvt"`
		BaseRthCPerMW    float64 `yaml:"base_rth_c_per_mw"`
	} `yaml:"thermal"`
}

// ParamsFile mirrors the behavioral parameter table layout.
type ParamsFile struct {
	General struct {
		SamplesPerUI int     `yaml:"samples_per_ui"`
		BaudGBd      float64 `yaml:"baud_gbd"`
		VppMV        float64 `yaml:"vpp_mv"`
		AmbientC     float64 `yaml:"ambient_c"`
	} `yaml:"general"`

	EqualizerParameters struct {
		TxDriverBWLimitFactor float64 `yaml:"tx_driver_bw_limit_factor"`
		ReflectionTaxDelayUI  int     `yaml:"reflection_tax_delay_ui"`

		CTLE struct {
			ZeroFactor  float64 `yaml:"zero_factor"`
			Pole1Factor float64 `yaml:"pole1_factor"`
			Pole2Factor float64 `yaml:"pole2_factor"`
		} `yaml:"ctle"`

		FFE struct {
			NumTaps int     `yaml:"num_taps"`
			TapMin  float64 `yaml:"tap_min"`
			TapMax  float64 `yaml:"tap_max"`
			Bits    int     `yaml:"bits"`
		} `yaml:"ffe"`

		DFE struct {
			TapsMV      []float64 `yaml:"taps_mv"`
			Tap1LimitMV float64   `yaml:"tap1_limit_mv"`
		} `yaml:"dfe"`
	} `yaml:"equalizer_parameters"`

	Clocking struct {
		PathLengthMM     float64 `yaml:"path_length_mm"`
		LoopBandwidthMHz float64 `yaml:"loop_bandwidth_mhz"`
		Arch             string  `yaml:"latency_arch"`
		PIResolution     int     `yaml:"pi_resolution"`
		DeskewLegs       int     `yaml:"deskew_legs"`
	} `yaml:"clocking"`
}

// Load reads both tables and overlays them on the default scenario. Either
// path may be empty, in which case that table keeps its defaults.
func Load(techPath, paramsPath string) (signoff.Scenario, error) {
	sc := signoff.DefaultScenario()

	if techPath != "" {
		var tf TechFile
		if err := readYAML(techPath, &tf); err != nil {
			return sc, err
		}
		applyTech(&sc, tf)
	}

	if paramsPath != "" {
		var pf ParamsFile
		if err := readYAML(paramsPath, &pf); err != nil {
			return sc, err
		}
		if err := applyParams(&sc, pf); err != nil {
			return sc, err
		}
	}

	return sc, nil
}

// FromEnv resolves the table paths from the environment, honoring a local
// .env file. Unset variables keep the built-in defaults.
func FromEnv() (signoff.Scenario, error) {
	// A missing .env file is fine; explicit variables still apply.
	_ = godotenv.Load()

	return Load(os.Getenv(EnvTechFile), os.Getenv(EnvParamsFile))
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &link.DataError{
			Param:  path,
			Detail: fmt.Sprintf("cannot read table: %s", err),
		}
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return &link.DataError{
			Param:  path,
			Detail: fmt.Sprintf("malformed table: %s", err),
		}
	}

	return nil
}

func applyTech(sc *signoff.Scenario, tf TechFile) {
	if tf.ImpedanceMatching.TargetZ0 > 0 {
		sc.Phy.TargetZ0 = tf.ImpedanceMatching.TargetZ0
	}
	if tf.ImpedanceMatching.RxTermZ > 0 {
		sc.Phy.RxTermZ = tf.ImpedanceMatching.RxTermZ
	}

	if tf.EqualizationLegs.DFETapPwrMW > 0 {
		sc.Tech.DFETapPowerMW = tf.EqualizationLegs.DFETapPwrMW
	}
	if tf.EqualizationLegs.DFETapAreaUM2 > 0 {
		sc.Tech.DFETapAreaUM2 = tf.EqualizationLegs.DFETapAreaUM2
	}

	if tf.AnalogFrontEnd.CTLEPowerPerStageMW > 0 {
		sc.Tech.CTLEStagePowerMW = tf.AnalogFrontEnd.CTLEPowerPerStageMW
	}
	if tf.AnalogFrontEnd.VGAPowerMW > 0 {
		sc.Tech.VGAPowerMW = tf.AnalogFrontEnd.VGAPowerMW
	}
	if tf.AnalogFrontEnd.ADC7BitPowerMW > 0 {
		sc.Tech.ADCPowerMW = tf.AnalogFrontEnd.ADC7BitPowerMW
	}

	if tf.Clocking.PLLBasePowerMW > 0 {
		sc.Tech.PLLBasePowerMW = tf.Clocking.PLLBasePowerMW
	}
	if tf.Clocking.PLLPerMMPowerMW > 0 {
		sc.Tech.PLLPerMMPowerMW = tf.Clocking.PLLPerMMPowerMW
	}
	if tf.Clocking.CDRPowerMW > 0 {
		sc.Tech.CDRBasePowerMW = tf.Clocking.CDRPowerMW
	}
	if tf.Clocking.CDRBaselineDepth > 0 {
		sc.Tech.CDRBaselineDepth = tf.Clocking.CDRBaselineDepth
	}
	if tf.Clocking.CDRUnrollWeight > 0 {
		sc.Tech.CDRUnrollWeight = tf.Clocking.CDRUnrollWeight
	}

	if tf.TxDriver.Legs > 0 {
		sc.Tech.TxDriverLegs = tf.TxDriver.Legs
	}
	if tf.TxDriver.PerLegPowerMW > 0 {
		sc.Tech.TxDriverPerLegMW = tf.TxDriver.PerLegPowerMW
	}

	if tf.Thermal.StaticMWAt25C > 0 {
		sc.Thermal.StaticMWAt25C = tf.Thermal.StaticMWAt25C
	}
	if tf.Thermal.DynamicMWNominal > 0 {
		sc.Thermal.DynamicMWNominal = tf.Thermal.DynamicMWNominal
	}
	if tf.Thermal.BaseRthCPerMW > 0 {
		sc.Thermal.BaseRthCPerMW = tf.Thermal.BaseRthCPerMW
	}
	sc.Thermal.HVT = tf.Thermal.HVT
}

func applyParams(sc *signoff.Scenario, pf ParamsFile) error {
	if pf.General.SamplesPerUI > 0 {
		sc.Phy.SamplesPerUI = pf.General.SamplesPerUI
	}
	if pf.General.BaudGBd > 0 {
		sc.BaudGBd = pf.General.BaudGBd
	}
	if pf.General.VppMV > 0 {
		sc.VppMV = pf.General.VppMV
	}
	if pf.General.AmbientC != 0 {
		sc.AmbientC = pf.General.AmbientC
	}

	ep := pf.EqualizerParameters
	if ep.TxDriverBWLimitFactor > 0 {
		sc.Phy.DriverBWFactor = ep.TxDriverBWLimitFactor
	}
	if ep.ReflectionTaxDelayUI > 0 {
		sc.Phy.ReflectionDelayUI = ep.ReflectionTaxDelayUI
	}

	if ep.CTLE.ZeroFactor > 0 {
		sc.Equalizer.CTLEZeroFactor = ep.CTLE.ZeroFactor
	}
	if ep.CTLE.Pole1Factor > 0 {
		sc.Equalizer.CTLEPole1Factor = ep.CTLE.Pole1Factor
	}
	if ep.CTLE.Pole2Factor > 0 {
		sc.Equalizer.CTLEPole2Factor = ep.CTLE.Pole2Factor
	}

	if ep.FFE.NumTaps > 0 {
		sc.Equalizer.FFETaps = make([]float64, ep.FFE.NumTaps)
	}
	if ep.FFE.Bits > 0 {
		sc.Equalizer.Quant = link.TapQuant{
			Min:  ep.FFE.TapMin,
			Max:  ep.FFE.TapMax,
			Bits: ep.FFE.Bits,
		}
	}

	if len(ep.DFE.TapsMV) > 0 {
		sc.Equalizer.DFETapsMV = append([]float64(nil), ep.DFE.TapsMV...)
	}
	if ep.DFE.Tap1LimitMV > 0 {
		sc.Equalizer.DFETap1LimitMV = ep.DFE.Tap1LimitMV
	}

	ck := pf.Clocking
	if ck.PathLengthMM > 0 {
		sc.Clocking.PathLengthMM = ck.PathLengthMM
	}
	if ck.LoopBandwidthMHz > 0 {
		sc.Clocking.LoopBandwidthMHz = ck.LoopBandwidthMHz
	}
	if ck.PIResolution > 0 {
		sc.Clocking.PIResolution = ck.PIResolution
	}
	if ck.DeskewLegs > 0 {
		sc.Clocking.DeskewLegs = ck.DeskewLegs
	}

	switch ck.Arch {
	case "", "standard":
		sc.Clocking.Arch = link.LatencyStandard
	case "speculative":
		sc.Clocking.Arch = link.LatencySpeculative
	default:
		return &link.DataError{
			Param:  "latency_arch",
			Detail: fmt.Sprintf("unknown architecture %q", ck.Arch),
		}
	}

	return nil
}
