package main

import (
	"fmt"

	storageact "github.com/oemtools/satactivate/subsystem/actlog/storage"
	storageactdiskv "github.com/oemtools/satactivate/subsystem/actlog/storage/diskv"
	storageactinmem "github.com/oemtools/satactivate/subsystem/actlog/storage/inmem"
	storageprof "github.com/oemtools/satactivate/subsystem/profile/storage"
	storageprofdiskv "github.com/oemtools/satactivate/subsystem/profile/storage/diskv"
	storageprofinmem "github.com/oemtools/satactivate/subsystem/profile/storage/inmem"
	storageprofmysql "github.com/oemtools/satactivate/subsystem/profile/storage/mysql"

	_ "github.com/go-sql-driver/mysql"
)

type storageConfig struct {
	profile storageprof.Storage
	actlog  storageact.Storage
}

func parseStorage(name, dsn string) (*storageConfig, error) {
	switch name {
	case "inmem":
		return &storageConfig{
			profile: storageprofinmem.New(),
			actlog:  storageactinmem.New(),
		}, nil
	case "file", "diskv":
		if dsn == "" {
			dsn = "db"
		}
		return &storageConfig{
			profile: storageprofdiskv.New(dsn),
			actlog:  storageactdiskv.New(dsn),
		}, nil
	case "mysql":
		prof, err := storageprofmysql.New(storageprofmysql.WithDSN(dsn))
		if err != nil {
			return nil, err
		}
		// no MySQL activation history backend yet
		return &storageConfig{
			profile: prof,
			actlog:  storageactinmem.New(),
		}, nil
	}
	return nil, fmt.Errorf("unknown storage: %s", name)
}
