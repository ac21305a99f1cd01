package inventory

// Schema for the DCIM-style inventory read model. Table and column names
// follow the NetBox conventions used by the upstream CMDB importer so the
// store stays drop-in compatible with exported databases.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS dcim_site (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    slug TEXT NOT NULL UNIQUE,
    status TEXT NOT NULL DEFAULT 'active',
    description TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dcim_manufacturer (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    slug TEXT NOT NULL UNIQUE,
    description TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dcim_platform (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    slug TEXT NOT NULL UNIQUE,
    manufacturer_id INTEGER,
    description TEXT,
    driver TEXT,
    paging_disable_command TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    FOREIGN KEY (manufacturer_id) REFERENCES dcim_manufacturer(id)
);

CREATE TABLE IF NOT EXISTS dcim_device_role (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    slug TEXT NOT NULL UNIQUE,
    color TEXT DEFAULT '9e9e9e',
    description TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dcim_device (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    site_id INTEGER NOT NULL,
    platform_id INTEGER,
    role_id INTEGER,
    status TEXT NOT NULL DEFAULT 'active',
    serial_number TEXT,
    primary_ip4 TEXT,
    ssh_port INTEGER DEFAULT 22,
    credential_id INTEGER,
    credential_tested_at TEXT,
    credential_test_result TEXT DEFAULT 'untested',
    description TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    last_collected_at TEXT,
    FOREIGN KEY (site_id) REFERENCES dcim_site(id),
    FOREIGN KEY (platform_id) REFERENCES dcim_platform(id),
    FOREIGN KEY (role_id) REFERENCES dcim_device_role(id),
    UNIQUE (site_id, name)
);

CREATE INDEX IF NOT EXISTS idx_device_site ON dcim_device(site_id);
CREATE INDEX IF NOT EXISTS idx_device_platform ON dcim_device(platform_id);
CREATE INDEX IF NOT EXISTS idx_device_status ON dcim_device(status);

CREATE TABLE IF NOT EXISTS jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    slug TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    description TEXT,
    capture_type TEXT NOT NULL DEFAULT 'custom',
    vendor TEXT,
    command TEXT NOT NULL,
    extra_commands TEXT,
    paging_disable_command TEXT,
    device_filter_site_id INTEGER,
    device_filter_role_id INTEGER,
    device_filter_platform_id INTEGER,
    device_filter_name_pattern TEXT,
    device_filter_status TEXT NOT NULL DEFAULT 'active',
    device_filter_limit INTEGER NOT NULL DEFAULT 0,
    use_validation INTEGER NOT NULL DEFAULT 0,
    template_filter TEXT,
    validation_min_score REAL NOT NULL DEFAULT 0,
    save_on_fail INTEGER NOT NULL DEFAULT 0,
    max_workers INTEGER NOT NULL DEFAULT 10,
    timeout_seconds INTEGER NOT NULL DEFAULT 60,
    inter_command_delay_ms INTEGER NOT NULL DEFAULT 1000,
    output_directory TEXT,
    filename_pattern TEXT NOT NULL DEFAULT '{device_name}_{timestamp}.txt',
    is_enabled INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// defaultPlatforms seed the platform table on init. The driver value
// selects SSH prompt and paging conventions; the paging command is the
// per-platform prelude sent before collection commands.
var defaultPlatforms = []struct {
	Name         string
	Slug         string
	Manufacturer string
	Driver       string
	Paging       string
}{
	{"Cisco IOS", "cisco_ios", "cisco", "cisco_ios", "terminal length 0"},
	{"Cisco IOS-XE", "cisco_ios_xe", "cisco", "cisco_xe", "terminal length 0"},
	{"Cisco IOS-XR", "cisco_ios_xr", "cisco", "cisco_xr", "terminal length 0"},
	{"Cisco NX-OS", "cisco_nxos", "cisco", "cisco_nxos", "terminal length 0"},
	{"Cisco ASA", "cisco_asa", "cisco", "cisco_asa", "terminal pager 0"},
	{"Arista EOS", "arista_eos", "arista", "arista_eos", "terminal length 0"},
	{"Juniper Junos", "juniper_junos", "juniper", "juniper_junos", "set cli screen-length 0"},
	{"Palo Alto PAN-OS", "paloalto_panos", "palo-alto", "paloalto_panos", "set cli pager off"},
	{"HP ProCurve", "hp_procurve", "hp", "hp_procurve", "no page"},
	{"HP Comware", "hp_comware", "hp", "hp_comware", "screen-length disable"},
	{"Dell OS10", "dell_os10", "dell", "dell_os10", "terminal length 0"},
}

// defaultRoles seed the device role table on init.
var defaultRoles = []struct {
	Name  string
	Slug  string
	Color string
}{
	{"Router", "router", "3498db"},
	{"Switch", "switch", "2ecc71"},
	{"Firewall", "firewall", "e74c3c"},
	{"Load Balancer", "load-balancer", "9b59b6"},
	{"Core", "core", "e67e22"},
	{"Distribution", "distribution", "f1c40f"},
	{"Access", "access", "27ae60"},
	{"Edge", "edge", "9b59b6"},
}
