// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "GiftTrack-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "gifttrack.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "gifttrack.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "gifttrack")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "gifttrack")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("source.baseurl", "https://t.me/nft")
	viper.SetDefault("source.botbaseurl", "https://api.telegram.org")
	viper.SetDefault("source.bottoken", "")
	viper.SetDefault("source.timeout", 10)
	viper.SetDefault("source.ratelimitms", 100)
	viper.SetDefault("source.cachettl", 15)
	viper.SetDefault("source.useragent", "GiftTrack-Go")

	viper.SetDefault("sync.interval", 120)
	viper.SetDefault("sync.batchsize", 50)
	viper.SetDefault("sync.batchdelayms", 1000)
	viper.SetDefault("sync.archiveretention", 3)
	viper.SetDefault("sync.types", []string{})

	viper.SetDefault("analytics.windowhours", 24)
	viper.SetDefault("analytics.stalenessminutes", 30)

	viper.SetDefault("realtime.api.enabled", true)
	viper.SetDefault("realtime.api.listen", "0.0.0.0:8080")
	viper.SetDefault("realtime.telemetry.enabled", false)
	viper.SetDefault("realtime.telemetry.listen", "0.0.0.0:8090")
	viper.SetDefault("realtime.mqtt.enabled", false)
	viper.SetDefault("realtime.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("realtime.mqtt.topic", "gifttrack")
	viper.SetDefault("realtime.mqtt.username", "")
	viper.SetDefault("realtime.mqtt.password", "")
	viper.SetDefault("realtime.notification.enabled", false)
	viper.SetDefault("realtime.notification.urls", []string{})
	viper.SetDefault("realtime.notification.lowstockpercent", 10)
}
