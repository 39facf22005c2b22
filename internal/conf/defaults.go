// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// setDefaultConfig registers default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "boxlabel")
	v.SetDefault("main.log.level", "info")
	v.SetDefault("main.log.file", "")
	v.SetDefault("main.log.timezone", "Local")

	v.SetDefault("project.root", ".")
	v.SetDefault("project.configdir", "configs")

	v.SetDefault("annotation.format", FormatVOC)
	v.SetDefault("annotation.savedir", "")
	v.SetDefault("annotation.autoinsertclasses", true)

	v.SetDefault("dataset.trainratio", 0.8)
	v.SetDefault("dataset.seed", 42)
	v.SetDefault("dataset.clean", true)
	v.SetDefault("dataset.backup", false)
	v.SetDefault("dataset.excludetrained", false)
	v.SetDefault("dataset.useregistry", true)

	v.SetDefault("predictor.modelpath", "")
	v.SetDefault("predictor.labelpath", "")
	v.SetDefault("predictor.device", DeviceAuto)
	v.SetDefault("predictor.threads", 0)
	v.SetDefault("predictor.conf", 0.25)
	v.SetDefault("predictor.iou", 0.45)
	v.SetDefault("predictor.maxdet", 300)
	v.SetDefault("predictor.minboxsize", 4.0)
	v.SetDefault("predictor.maxoverlap", 0.8)
	v.SetDefault("predictor.perclass", map[string]float64{})

	v.SetDefault("batch.recursive", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")

	v.SetDefault("metrics.file", "")
}
